package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/realtime"
)

// fakeAcker records the last emit and answers with a scripted ack.
type fakeAcker struct {
	event   string
	payload []byte
	ack     realtime.AckResult
	err     error
}

func (f *fakeAcker) EmitWithAck(ctx context.Context, event string, v any) (realtime.AckResult, error) {
	f.event = event
	data, err := json.Marshal(v)
	if err != nil {
		return realtime.AckResult{}, err
	}
	f.payload = data
	return f.ack, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartConversation_WireShape(t *testing.T) {
	data, _ := json.Marshal(chat.ConversationSummary{ConversationID: "C9"})
	f := &fakeAcker{ack: realtime.AckResult{OK: true, Data: data}}

	cs, err := startConversation(context.Background(), f, "u2", true)
	if err != nil {
		t.Fatal(err)
	}
	if cs.ConversationID != "C9" {
		t.Errorf("conversation id = %q, want C9", cs.ConversationID)
	}
	if f.event != realtime.EmitStartConversation {
		t.Errorf("event = %q", f.event)
	}

	var p map[string]any
	if err := json.Unmarshal(f.payload, &p); err != nil {
		t.Fatal(err)
	}
	if p["otherUserId"] != "u2" {
		t.Errorf("payload = %s, want otherUserId field", f.payload)
	}
	if p["isBusinessConversation"] != true {
		t.Errorf("payload = %s, business flag missing", f.payload)
	}
}

func TestStartConversation_UserConversationOmitsFlag(t *testing.T) {
	data, _ := json.Marshal(chat.ConversationSummary{ConversationID: "C1"})
	f := &fakeAcker{ack: realtime.AckResult{OK: true, Data: data}}

	if _, err := startConversation(context.Background(), f, "u2", false); err != nil {
		t.Fatal(err)
	}
	var p map[string]any
	if err := json.Unmarshal(f.payload, &p); err != nil {
		t.Fatal(err)
	}
	if _, present := p["isBusinessConversation"]; present {
		t.Errorf("payload = %s, false flag should be omitted", f.payload)
	}
}

func TestStartConversation_Rejected(t *testing.T) {
	f := &fakeAcker{ack: realtime.AckResult{OK: false, Err: "blocked"}}
	_, err := startConversation(context.Background(), f, "u2", false)
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("error = %v, want server rejection surfaced", err)
	}
}

func TestStartConversation_TransportError(t *testing.T) {
	f := &fakeAcker{err: errors.New("not connected")}
	if _, err := startConversation(context.Background(), f, "u2", false); err == nil {
		t.Error("transport error not reported")
	}
}

func TestMarkMessagesRead_EmitsWithAck(t *testing.T) {
	f := &fakeAcker{ack: realtime.AckResult{OK: true}}
	markMessagesRead(context.Background(), f, "C1", discardLogger())

	if f.event != realtime.EmitMarkMessagesRead {
		t.Errorf("event = %q", f.event)
	}
	var p map[string]string
	if err := json.Unmarshal(f.payload, &p); err != nil {
		t.Fatal(err)
	}
	if p["conversationId"] != "C1" {
		t.Errorf("payload = %s", f.payload)
	}
}

func TestMarkMessagesRead_RejectionIsNonFatal(t *testing.T) {
	// A rejected or failed mark-read only logs; the caller proceeds.
	markMessagesRead(context.Background(),
		&fakeAcker{ack: realtime.AckResult{OK: false, Err: "nope"}}, "C1", discardLogger())
	markMessagesRead(context.Background(),
		&fakeAcker{err: errors.New("not connected")}, "C1", discardLogger())
}
