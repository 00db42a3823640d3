// Package api is the REST client for the collaborators around the
// realtime core: conversation history, notifications, and the advisor.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bizlink/bizchat-go/internal/chat"
	"github.com/bizlink/bizchat-go/internal/notify"
)

// tokenSource is the minimal credential dependency.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the REST API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	tokens     tokenSource

	// advisorCancel aborts the previous in-flight advisor query when a
	// new one is issued; at most one is in flight per client.
	advisorMu     sync.Mutex
	advisorCancel context.CancelFunc
}

// New creates a REST client for the given base URL.
func New(endpoint string, tokens tokenSource) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Conversations lists the caller's conversations with summary state.
func (c *Client) Conversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	if err := c.do(ctx, "GET", "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches a conversation's message history.
func (c *Client) History(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out []chat.Message
	path := "/conversations/history?conversationId=" + url.QueryEscape(conversationID)
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BusinessMessages fetches the message log of a business-business chat.
func (c *Client) BusinessMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var out []chat.Message
	path := "/business-chat/" + url.PathEscape(chatID) + "/messages"
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications fetches the historical notification feed.
func (c *Client) Notifications(ctx context.Context) ([]notify.Notification, error) {
	var out []notify.Notification
	if err := c.do(ctx, "GET", "/business/my/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead marks one notification read server-side.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	path := "/business/my/notifications/" + url.PathEscape(id) + "/read"
	return c.do(ctx, "PUT", path, nil, nil)
}

// ClearReadNotifications deletes read notifications server-side.
func (c *Client) ClearReadNotifications(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/business/my/notifications/clearRead", nil, nil)
}

// AdvisorAnswer is the advisor endpoint's response.
type AdvisorAnswer struct {
	Answer string `json:"answer"`
}

// AskAdvisor issues an advisor query, aborting any previous query
// still in flight from this client. The abort is best-effort: the
// server may still process the superseded request, the client simply
// discards its response.
func (c *Client) AskAdvisor(ctx context.Context, question string) (*AdvisorAnswer, error) {
	ctx, cancel := context.WithCancel(ctx)
	c.advisorMu.Lock()
	if c.advisorCancel != nil {
		c.advisorCancel()
	}
	c.advisorCancel = cancel
	c.advisorMu.Unlock()

	var out AdvisorAnswer
	err := c.do(ctx, "POST", "/advisor/query", map[string]string{"question": question}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
