package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/notify"
)

type staticTokens struct{ tok string }

func (s staticTokens) Token(ctx context.Context) (string, error) { return s.tok, nil }

func TestClient_Conversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.URL.Path != "/conversations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode([]chat.ConversationSummary{
			{ConversationID: "C1", Kind: chat.KindUserBusiness, Unread: 2},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})
	got, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ConversationID != "C1" || got[0].Unread != 2 {
		t.Errorf("Conversations() = %+v", got)
	}
}

func TestClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("conversationId"); got != "C 1" {
			t.Errorf("conversationId = %q, want unescaped C 1", got)
		}
		json.NewEncoder(w).Encode([]chat.Message{
			{ID: "m1", ConversationID: "C 1", Text: "hi"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})
	got, err := c.History(context.Background(), "C 1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("History() = %+v", got)
	}
}

func TestClient_Notifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/business/my/notifications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]notify.Notification{
			{ID: "n1", ThreadID: "T1", Type: notify.TypeMessage, UnreadCount: 1},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})
	got, err := c.Notifications(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("Notifications() = %+v", got)
	}
}

func TestClient_MarkNotificationRead(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})
	if err := c.MarkNotificationRead(context.Background(), "n1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != "PUT" || gotPath != "/business/my/notifications/n1/read" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestClient_ClearReadNotifications(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})
	if err := c.ClearReadNotifications(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotMethod != "DELETE" || gotPath != "/business/my/notifications/clearRead" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})
	_, err := c.Conversations(context.Background())
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want status in message", err)
	}
}

func TestAskAdvisor_AbortsPreviousQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		if body.Question == "slow" {
			// Hold until the client aborts.
			<-r.Context().Done()
			return
		}
		json.NewEncoder(w).Encode(AdvisorAnswer{Answer: "42"})
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens{"tok"})

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.AskAdvisor(context.Background(), "slow")
		firstErr <- err
	}()

	// Let the first query reach the server before superseding it.
	time.Sleep(100 * time.Millisecond)

	got, err := c.AskAdvisor(context.Background(), "fast")
	if err != nil {
		t.Fatal(err)
	}
	if got.Answer != "42" {
		t.Errorf("answer = %q, want 42", got.Answer)
	}

	select {
	case err := <-firstErr:
		if err == nil {
			t.Error("superseded query did not fail")
		} else if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("superseded query error = %v, want cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded query never returned")
	}
}
