// Package auth provides the bearer-credential source for the realtime
// session and the REST collaborators.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrNoToken is returned when no credential can be produced. Callers
// treat it as unrecoverable at this layer (logout/redirect), never as
// something to retry.
var ErrNoToken = errors.New("auth: no token available")

// Identity describes who is authenticated.
type Identity struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	BusinessID string `json:"businessId,omitempty"`
}

// RequiresBusiness reports whether the role cannot be authorized
// without a business id.
func (id Identity) RequiresBusiness() bool {
	return id.Role == "business" || id.Role == "business-dashboard"
}

// TokenSource yields the current bearer credential. Token returns the
// cached credential; Refresh forces a round-trip for a renewed one.
// Both report failure as an error rather than panicking, so the
// session layer can route it to its unrecoverable callback.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token and cannot refresh. Useful
// for tests and short-lived tooling.
type StaticTokenSource struct {
	Value string
}

// Token returns the fixed token.
func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.Value == "" {
		return "", ErrNoToken
	}
	return s.Value, nil
}

// Refresh returns the same fixed token; a static source has nothing to renew.
func (s StaticTokenSource) Refresh(ctx context.Context) (string, error) {
	return s.Token(ctx)
}

// Client is an HTTP-backed token source talking to the auth endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	refresh string
}

// NewClient creates a token source against the given API base URL.
// The initial access and refresh tokens come from whatever login flow
// produced them; this client only renews.
func NewClient(baseURL, accessToken, refreshToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      accessToken,
		refresh:    refreshToken,
	}
}

// Token returns the cached access token, refreshing once if none is held.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return c.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return "", ErrNoToken
	}

	reqBody, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/refresh-token", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// A rejected refresh means the credential chain is dead.
		return "", fmt.Errorf("%w: server said %s", ErrNoToken, resp.Status)
	}

	var parsed struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Token == "" {
		return "", ErrNoToken
	}

	c.mu.Lock()
	c.token = parsed.Token
	if parsed.RefreshToken != "" {
		c.refresh = parsed.RefreshToken
	}
	c.mu.Unlock()

	return parsed.Token, nil
}

// Me fetches the authenticated identity.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return Identity{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/auth/me", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("fetch identity: server said %s", resp.Status)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("unmarshal identity: %w", err)
	}
	return id, nil
}
