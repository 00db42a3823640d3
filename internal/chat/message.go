// Package chat holds the per-conversation message log and its
// reconciliation against server acknowledgements, plus the
// conversation-list summary state fed by messages for inactive
// conversations.
package chat

import (
	"strconv"
	"time"
)

// MessageState tracks a log entry through its lifecycle. Sent and
// failed are terminal; a failed message is retried only by a new user
// action producing a new entry.
type MessageState string

const (
	StatePending MessageState = "pending"
	StateSent    MessageState = "sent"
	StateFailed  MessageState = "failed"
)

// Attachment is an opaque reference to structured payload content
// (audio, file, image). The client never interprets it.
type Attachment struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// Message is one entry in a conversation's ordered log.
type Message struct {
	// ID is the server-assigned permanent identifier. TempID is the
	// client-generated placeholder present only before the ack.
	ID     string `json:"id,omitempty"`
	TempID string `json:"tempId,omitempty"`

	ConversationID string      `json:"conversationId"`
	From           string      `json:"from"`
	To             string      `json:"to,omitempty"`
	Text           string      `json:"text,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`

	State MessageState `json:"state,omitempty"`

	// TimedOut marks a failed entry whose ack never arrived, for UIs
	// that want to word the failure differently.
	TimedOut bool `json:"-"`
}

// identityKey resolves the dedup identity of a message: permanent id,
// else temp id, else timestamp. The timestamp fallback accepts the
// small risk of a same-millisecond collision.
func identityKey(m Message) string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	if m.TempID != "" {
		return "tmp:" + m.TempID
	}
	return "ts:" + strconv.FormatInt(m.Timestamp.UnixMilli(), 10)
}

// hasContent reports whether the message carries either text or a
// structured payload.
func hasContent(m Message) bool {
	return m.Text != "" || m.Attachment != nil
}
