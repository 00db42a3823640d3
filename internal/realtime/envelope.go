// Package realtime implements the event-envelope protocol spoken over
// the websocket connection: named events with JSON payloads, and
// request/acknowledgement correlation for client-initiated calls.
package realtime

import "encoding/json"

// Server-pushed event names.
const (
	EventTokenExpired        = "tokenExpired"
	EventNewMessage          = "newMessage"
	EventNewAiSuggestion     = "newAiSuggestion"
	EventNewRecommendation   = "newRecommendation"
	EventMessageApproved     = "messageApproved"
	EventUnreadMessagesCount = "unreadMessagesCount"
	EventNewNotification     = "newNotification"

	// eventAck carries the server's reply to an emit that requested one.
	eventAck = "ack"
)

// Client-emitted event names.
const (
	EmitJoinConversation  = "joinConversation"
	EmitLeaveConversation = "leaveConversation"
	EmitSendMessage       = "sendMessage"
	EmitGetHistory        = "getHistory"
	EmitMarkMessagesRead  = "markMessagesRead"
	EmitGetConversations  = "getConversations"
	EmitStartConversation = "startConversation"
)

// Envelope is the wire format for every frame in both directions.
// ID is set on emits that expect an acknowledgement and echoed back
// on the matching ack frame.
type Envelope struct {
	Event   string          `json:"event"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ackBody is the payload of an ack frame.
type ackBody struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AckResult is the outcome of an emit that requested an acknowledgement.
// TimedOut distinguishes "server never answered" from "server said no";
// callers that only care about success can ignore it, since both
// collapse to the same remedy.
type AckResult struct {
	OK       bool
	Err      string
	Data     json.RawMessage
	TimedOut bool
}

// Decode unmarshals the ack's data payload into v.
func (a AckResult) Decode(v any) error {
	return json.Unmarshal(a.Data, v)
}

// Disconnect reasons surfaced to OnDisconnect handlers. The session
// manager drops its cached handle only for the explicit client/server
// reasons; anything else is treated as transient.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
)
