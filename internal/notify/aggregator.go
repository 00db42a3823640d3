package notify

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/bizlink/bizchat-go/internal/realtime"
)

// Aggregator is the notification feed reducer. It merges server-fetched
// state with live pushed events, deduplicates, applies supersession,
// and keeps the aggregate unread count. Actions are processed in
// delivery order.
type Aggregator struct {
	log *slog.Logger

	mu      sync.Mutex
	feed    []Notification
	unread  int
	changed func()
}

// NewAggregator creates an empty feed.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{log: logger}
}

// OnChange registers a callback fired after any state transition, for
// UIs that need a redraw signal.
func (a *Aggregator) OnChange(fn func()) {
	a.mu.Lock()
	a.changed = fn
	a.mu.Unlock()
}

// Bind subscribes the aggregator to a connection's notification and
// badge events.
func (a *Aggregator) Bind(conn *realtime.Conn) {
	conn.On(realtime.EventNewNotification, func(payload json.RawMessage) {
		var n Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			a.log.Warn("undecodable notification event", "error", err)
			return
		}
		a.AddOne(n)
	})
	conn.On(realtime.EventUnreadMessagesCount, func(payload json.RawMessage) {
		var count int
		if err := json.Unmarshal(payload, &count); err != nil {
			a.log.Warn("undecodable unread count event", "error", err)
			return
		}
		a.UpdateUnreadCount(count)
	})
}

// SetAll replaces the feed from a server fetch: every entry is
// normalized, superseded entries are dropped, ordering is most recent
// first, and the aggregate unread count is recomputed.
func (a *Aggregator) SetAll(list []Notification) {
	normalized := make([]Notification, 0, len(list))
	for _, n := range list {
		normalized = append(normalized, normalize(n))
	}
	feed := filterSuperseded(normalized)
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Timestamp.After(feed[j].Timestamp)
	})

	a.mu.Lock()
	a.feed = feed
	a.unread = sumUnread(feed)
	a.mu.Unlock()
	a.notifyChange()
}

// AddOne merges a live pushed notification into the feed under the
// supersession rules and recomputes the aggregate unread count.
func (a *Aggregator) AddOne(n Notification) {
	a.mu.Lock()
	a.feed = applySupersession(a.feed, n)
	a.unread = sumUnread(a.feed)
	a.mu.Unlock()
	a.notifyChange()
}

// UpdateUnreadCount overrides the aggregate badge with a server-pushed
// total.
func (a *Aggregator) UpdateUnreadCount(count int) {
	if count < 0 {
		count = 0
	}
	a.mu.Lock()
	a.unread = count
	a.mu.Unlock()
	a.notifyChange()
}

// ClearAll resets to empty state and zero unread, used after a bulk
// mark-all-read round-trip succeeds.
func (a *Aggregator) ClearAll() {
	a.mu.Lock()
	a.feed = nil
	a.unread = 0
	a.mu.Unlock()
	a.notifyChange()
}

// MarkRead optimistically marks one entry read and decrements the
// aggregate before the server confirms. There is no rollback; the next
// SetAll from a fetch re-derives the true count.
func (a *Aggregator) MarkRead(id string) {
	a.mu.Lock()
	for i := range a.feed {
		if a.feed[i].ID == id && !a.feed[i].Read {
			a.unread -= a.feed[i].UnreadCount
			if a.unread < 0 {
				a.unread = 0
			}
			a.feed[i].Read = true
			a.feed[i].UnreadCount = 0
			break
		}
	}
	a.mu.Unlock()
	a.notifyChange()
}

// Visible returns the current feed, most recent first.
func (a *Aggregator) Visible() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Notification, len(a.feed))
	copy(out, a.feed)
	return out
}

// Unread returns the aggregate unread count.
func (a *Aggregator) Unread() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread
}

func (a *Aggregator) notifyChange() {
	a.mu.Lock()
	fn := a.changed
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func sumUnread(list []Notification) int {
	total := 0
	for _, n := range list {
		total += n.UnreadCount
	}
	return total
}
