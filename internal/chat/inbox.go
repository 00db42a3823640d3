package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bizlink/bizchat-go/internal/realtime"
)

// Suggestion is an AI-generated reply proposal pushed by the server,
// pending business approval. Approved suggestions come back as
// messageApproved events and enter the message log like any remote
// message.
type Suggestion struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Inbox routes incoming message traffic: events for the active
// conversation go into its reconciler's log, everything else updates
// conversation-list summary state. One inbox serves the whole client;
// the active reconciler swaps as the user changes conversations.
type Inbox struct {
	ackTimeout time.Duration
	log        *slog.Logger

	mu     sync.Mutex
	active *Reconciler

	Summaries *SummaryStore

	onSuggestion func(Suggestion)
	onLogChange  func()
}

// NewInbox creates an inbox with an empty summary store.
func NewInbox(ackTimeout time.Duration, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		ackTimeout: ackTimeout,
		log:        logger,
		Summaries:  NewSummaryStore(),
	}
}

// OnSuggestion registers the callback for AI suggestion events.
func (in *Inbox) OnSuggestion(fn func(Suggestion)) {
	in.mu.Lock()
	in.onSuggestion = fn
	in.mu.Unlock()
}

// OnLogChange registers a callback fired whenever the active log
// changes from a remote event, for UIs that need a redraw signal.
func (in *Inbox) OnLogChange(fn func()) {
	in.mu.Lock()
	in.onLogChange = fn
	in.mu.Unlock()
}

// SetActive makes conversationID the active conversation, creating a
// fresh reconciler for it, and zeroes its unread badge. Passing the
// already-active id keeps the existing log.
func (in *Inbox) SetActive(conversationID string) *Reconciler {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active != nil && in.active.ConversationID() == conversationID {
		return in.active
	}
	in.active = NewReconciler(conversationID, in.ackTimeout, in.log)
	in.Summaries.MarkRead(conversationID)
	return in.active
}

// Active returns the current reconciler, or nil when no conversation
// is open.
func (in *Inbox) Active() *Reconciler {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active
}

// Bind subscribes the inbox to a connection's message events.
func (in *Inbox) Bind(conn *realtime.Conn) {
	conn.On(realtime.EventNewMessage, in.HandleNewMessage)
	conn.On(realtime.EventMessageApproved, in.HandleNewMessage)
	conn.On(realtime.EventNewAiSuggestion, in.handleSuggestion)
}

// HandleNewMessage routes a pushed message into the active log or the
// summary store.
func (in *Inbox) HandleNewMessage(payload json.RawMessage) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		in.log.Warn("undecodable message event", "error", err)
		return
	}

	in.mu.Lock()
	active := in.active
	changed := in.onLogChange
	in.mu.Unlock()

	if active != nil {
		grew, err := active.IngestRemote(m)
		if err == nil {
			if grew && changed != nil {
				changed()
			}
			return
		}
		if !errors.Is(err, ErrConversationMismatch) {
			in.log.Warn("dropping message event", "error", err)
			return
		}
	}

	in.Summaries.Ingest(m)
}

func (in *Inbox) handleSuggestion(payload json.RawMessage) {
	var s Suggestion
	if err := json.Unmarshal(payload, &s); err != nil {
		in.log.Warn("undecodable suggestion event", "error", err)
		return
	}
	in.mu.Lock()
	fn := in.onSuggestion
	in.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
