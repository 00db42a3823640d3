package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizlink/bizchat-go/internal/realtime"
)

// Reconciler errors.
var (
	ErrEmptyMessage         = errors.New("chat: message has no text or payload")
	ErrConversationMismatch = errors.New("chat: message belongs to another conversation")
	ErrUnknownTempID        = errors.New("chat: no pending entry for temp id")
)

// DefaultAckTimeout bounds how long an optimistic entry stays pending
// before it is marked failed.
const DefaultAckTimeout = 10 * time.Second

// Reconciler maintains one conversation's ordered message log. Local
// sends are inserted optimistically and later resolved in place by the
// server's acknowledgement; remote pushes are deduplicated by resolved
// identity. Insertion order is display order, and the only mutation an
// existing entry ever sees is its single pending-to-resolved transition.
type Reconciler struct {
	conversationID string
	ackTimeout     time.Duration
	log            *slog.Logger

	mu      sync.Mutex
	entries []Message
	// byKey maps resolved identity to position in entries.
	byKey  map[string]int
	timers map[string]*time.Timer
}

// NewReconciler creates a reconciler for one conversation. A zero
// ackTimeout uses DefaultAckTimeout.
func NewReconciler(conversationID string, ackTimeout time.Duration, logger *slog.Logger) *Reconciler {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		conversationID: conversationID,
		ackTimeout:     ackTimeout,
		log:            logger,
		byKey:          make(map[string]int),
		timers:         make(map[string]*time.Timer),
	}
}

// ConversationID returns the conversation this log tracks.
func (r *Reconciler) ConversationID() string {
	return r.conversationID
}

// AppendOptimistic inserts a pending entry at the tail of the log and
// returns its generated temp id. The ack timeout starts immediately:
// if Reconcile is not called within the bound, the entry transitions
// to failed exactly once.
func (r *Reconciler) AppendOptimistic(m Message) (string, error) {
	if !hasContent(m) {
		return "", ErrEmptyMessage
	}
	if m.ConversationID != r.conversationID {
		return "", ErrConversationMismatch
	}

	tempID := uuid.New().String()
	m.ID = ""
	m.TempID = tempID
	m.State = StatePending
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	r.mu.Lock()
	r.entries = append(r.entries, m)
	r.byKey[identityKey(m)] = len(r.entries) - 1
	r.timers[tempID] = time.AfterFunc(r.ackTimeout, func() {
		r.timeout(tempID)
	})
	r.mu.Unlock()

	return tempID, nil
}

// Reconcile resolves a pending entry with the server's acknowledgement.
// On success the entry is replaced in place with the canonical message,
// keeping its list position. On failure (or timeout, reported by the
// transport as a non-OK ack) the entry is marked failed and kept
// visible so the user can see what was not delivered.
func (r *Reconciler) Reconcile(tempID string, ack realtime.AckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.byKey["tmp:"+tempID]
	if !ok {
		return ErrUnknownTempID
	}
	if r.entries[pos].State != StatePending {
		// Already resolved; a late ack after the timeout fired is a no-op.
		return nil
	}

	r.stopTimer(tempID)

	if !ack.OK {
		r.entries[pos].State = StateFailed
		r.entries[pos].TimedOut = ack.TimedOut
		return nil
	}

	var canonical Message
	if err := ack.Decode(&canonical); err != nil {
		r.log.Warn("undecodable send ack, marking failed", "tempId", tempID, "error", err)
		r.entries[pos].State = StateFailed
		return nil
	}
	canonical.State = StateSent

	if canonical.ID != "" {
		if existing, dup := r.byKey["id:"+canonical.ID]; dup && existing != pos {
			// The canonical message already arrived as a remote push.
			// Drop the optimistic entry rather than duplicate it.
			r.removeAt(pos)
			delete(r.byKey, "tmp:"+tempID)
			return nil
		}
	}

	delete(r.byKey, "tmp:"+tempID)
	r.entries[pos] = canonical
	r.byKey[identityKey(canonical)] = pos
	return nil
}

// IngestRemote inserts a server-pushed message. Messages for other
// conversations are rejected with ErrConversationMismatch so the
// caller can route them to conversation-list summary state instead.
// A message whose resolved identity is already present is a no-op;
// the bool reports whether the log changed.
func (r *Reconciler) IngestRemote(m Message) (bool, error) {
	if m.ConversationID != r.conversationID {
		return false, ErrConversationMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := identityKey(m)
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}

	m.State = StateSent
	r.entries = append(r.entries, m)
	r.byKey[key] = len(r.entries) - 1
	return true, nil
}

// Dismiss removes an entry by temp id. This is the explicit removal
// path for failed sends the user discards; nothing is ever removed
// automatically.
func (r *Reconciler) Dismiss(tempID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.byKey["tmp:"+tempID]
	if !ok {
		return false
	}
	r.stopTimer(tempID)
	r.removeAt(pos)
	delete(r.byKey, "tmp:"+tempID)
	return true
}

// Messages returns a snapshot of the log in display order.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the current log length.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// timeout marks a still-pending entry failed. Runs from the ack timer.
func (r *Reconciler) timeout(tempID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.byKey["tmp:"+tempID]
	if !ok || r.entries[pos].State != StatePending {
		return
	}
	r.entries[pos].State = StateFailed
	r.entries[pos].TimedOut = true
	delete(r.timers, tempID)
	r.log.Debug("send ack timed out", "conversation", r.conversationID, "tempId", tempID)
}

// stopTimer cancels the ack timer for a temp id. Caller holds r.mu.
func (r *Reconciler) stopTimer(tempID string) {
	if t, ok := r.timers[tempID]; ok {
		t.Stop()
		delete(r.timers, tempID)
	}
}

// removeAt deletes the entry at pos and reindexes positions after it.
// Caller holds r.mu.
func (r *Reconciler) removeAt(pos int) {
	r.entries = append(r.entries[:pos], r.entries[pos+1:]...)
	for i := pos; i < len(r.entries); i++ {
		r.byKey[identityKey(r.entries[i])] = i
	}
}
