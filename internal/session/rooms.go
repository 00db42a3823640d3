package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/realtime"
)

// roomTransport is the slice of the connection the room tracker needs.
// Narrowed for testability with a fake.
type roomTransport interface {
	EmitWithAck(ctx context.Context, event string, v any) (realtime.AckResult, error)
	OnConnect(fn func())
}

// joinPayload is the wire shape of join/leave calls. Kind selects
// whether the business-conversation flag is set.
type joinPayload struct {
	ConversationID         string `json:"conversationId"`
	IsBusinessConversation bool   `json:"isBusinessConversation,omitempty"`
}

// Rooms tracks which conversation rooms the session has joined and
// replays them after every reconnect, since a fresh server-side
// session has forgotten membership. All join/leave traffic must go
// through it; consumers never call the transport directly, or the
// replay set drifts.
//
// Membership lives only for the process lifetime; it is rebuilt from
// the active-conversation list, never persisted.
type Rooms struct {
	t   roomTransport
	log *slog.Logger

	mu     sync.Mutex
	joined map[string]chat.ConversationKind
	active string
}

// NewRooms creates the tracker and registers its single reconnect
// subscription on the transport.
func NewRooms(t roomTransport, logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rooms{
		t:      t,
		log:    logger,
		joined: make(map[string]chat.ConversationKind),
	}
	t.OnConnect(r.rejoinAll)
	return r
}

// Join subscribes to a conversation room. Joining an already-joined
// room is a no-op; reconnection replay is handled internally, so
// callers can invoke Join freely without producing duplicate join
// calls downstream.
func (r *Rooms) Join(ctx context.Context, conversationID string, kind chat.ConversationKind) error {
	r.mu.Lock()
	if _, ok := r.joined[conversationID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.joined[conversationID] = kind
	r.mu.Unlock()

	if err := r.emitJoin(ctx, conversationID, kind); err != nil {
		r.mu.Lock()
		delete(r.joined, conversationID)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Leave unsubscribes from a room. Leaving a room that was never joined
// is a no-op; no leave call reaches the server.
func (r *Rooms) Leave(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	kind, ok := r.joined[conversationID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.joined, conversationID)
	if r.active == conversationID {
		r.active = ""
	}
	r.mu.Unlock()

	ack, err := r.t.EmitWithAck(ctx, realtime.EmitLeaveConversation, joinPayload{
		ConversationID:         conversationID,
		IsBusinessConversation: kind.IsBusiness(),
	})
	if err != nil {
		return fmt.Errorf("leave %s: %w", conversationID, err)
	}
	if !ack.OK {
		r.log.Warn("leave rejected", "conversation", conversationID, "error", ack.Err)
	}
	return nil
}

// SetActive switches message-delivery focus to a conversation: the
// previous active room is left, the new one joined. Other joined rooms
// (kept for badge and notification purposes) are untouched.
func (r *Rooms) SetActive(ctx context.Context, conversationID string, kind chat.ConversationKind) error {
	r.mu.Lock()
	prev := r.active
	if prev == conversationID {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if prev != "" {
		if err := r.Leave(ctx, prev); err != nil {
			return err
		}
	}
	if err := r.Join(ctx, conversationID, kind); err != nil {
		return err
	}

	// Recorded only once the join is on the wire, so a failed switch
	// never claims focus on a room the server does not have us in.
	r.mu.Lock()
	r.active = conversationID
	r.mu.Unlock()
	return nil
}

// Active returns the conversation currently holding delivery focus.
func (r *Rooms) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Joined returns the tracked room ids.
func (r *Rooms) Joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.joined))
	for id := range r.joined {
		out = append(out, id)
	}
	return out
}

// rejoinAll replays every tracked room after a (re)connect.
func (r *Rooms) rejoinAll() {
	r.mu.Lock()
	rooms := make(map[string]chat.ConversationKind, len(r.joined))
	for id, kind := range r.joined {
		rooms[id] = kind
	}
	r.mu.Unlock()

	for id, kind := range rooms {
		if err := r.emitJoin(context.Background(), id, kind); err != nil {
			r.log.Warn("rejoin failed", "conversation", id, "error", err)
		}
	}
}

func (r *Rooms) emitJoin(ctx context.Context, conversationID string, kind chat.ConversationKind) error {
	ack, err := r.t.EmitWithAck(ctx, realtime.EmitJoinConversation, joinPayload{
		ConversationID:         conversationID,
		IsBusinessConversation: kind.IsBusiness(),
	})
	if err != nil {
		return fmt.Errorf("join %s: %w", conversationID, err)
	}
	if !ack.OK {
		r.log.Warn("join rejected", "conversation", conversationID, "error", ack.Err)
	}
	return nil
}
