// Package session owns the singleton realtime connection: acquisition,
// credential rotation, and room membership across reconnects.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bizlink/bizchat-go/internal/auth"
	"github.com/bizlink/bizchat-go/internal/realtime"
)

// ErrMissingBusinessID is returned when a business role acquires a
// session without a business id; a socket that cannot be correctly
// authorized is never opened.
var ErrMissingBusinessID = errors.New("session: business role requires a business id")

// Manager owns at most one live realtime connection per authenticated
// identity. Consumers acquire the shared handle through it and must
// never disconnect the handle themselves; only the manager tears it
// down, on logout or credential rotation.
type Manager struct {
	baseOpts realtime.Options
	log      *slog.Logger

	mu              sync.Mutex
	conn            *realtime.Conn
	connToken       string
	onUnrecoverable func()
}

// NewManager creates a manager. baseOpts carries the socket endpoint
// configuration; its Token field is ignored in favor of the token
// source passed to Acquire.
func NewManager(baseOpts realtime.Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{baseOpts: baseOpts, log: logger}
}

// Acquire returns the live connection handle for the identity, creating
// it if needed.
//
// A nil handle is returned (with an error) when no credential can be
// produced or when a business role lacks a business id; both cases
// invoke onUnrecoverable, which typically routes to logout. When a
// handle already exists for the same resolved token it is returned
// unchanged; if its dial never succeeded, Acquire dials it again
// before returning. A different token tears the old handle down
// completely before dialing fresh, so stale listeners cannot
// double-deliver events.
//
// A dial failure still returns the handle alongside the error: connect
// errors are observable through the handle's connect-error signal and
// do not tear down manager state.
func (m *Manager) Acquire(ctx context.Context, src auth.TokenSource, identity auth.Identity, onUnrecoverable func()) (*realtime.Conn, error) {
	token, err := src.Token(ctx)
	if err != nil || token == "" {
		if onUnrecoverable != nil {
			onUnrecoverable()
		}
		if err == nil {
			err = auth.ErrNoToken
		}
		return nil, err
	}

	if identity.RequiresBusiness() && identity.BusinessID == "" {
		if onUnrecoverable != nil {
			onUnrecoverable()
		}
		return nil, ErrMissingBusinessID
	}

	m.mu.Lock()
	m.onUnrecoverable = onUnrecoverable
	if m.conn != nil && m.connToken == token {
		conn := m.conn
		m.mu.Unlock()
		// Auto-reconnect only revives an established connection that
		// dropped. A cached handle whose dial never succeeded has no
		// transport to revive; re-acquiring is its retry path.
		if conn.State() == realtime.StateDisconnected {
			if err := conn.Connect(ctx); err != nil {
				m.log.Warn("socket connect failed", "error", err)
				return conn, fmt.Errorf("connect session: %w", err)
			}
		}
		return conn, nil
	}

	// New credential for the same identity: tear the old handle down
	// fully so no listener or transport leaks across.
	if m.conn != nil {
		old := m.conn
		m.conn = nil
		m.mu.Unlock()
		old.RemoveAllHandlers()
		_ = old.Close()
		m.mu.Lock()
	}

	opts := m.baseOpts
	opts.Token = token
	opts.Logger = m.log
	conn := realtime.New(opts)
	m.conn = conn
	m.connToken = token
	m.mu.Unlock()

	conn.On(realtime.EventTokenExpired, func(json.RawMessage) {
		m.handleTokenExpired(conn, src)
	})
	conn.OnDisconnect(func(reason string) {
		if reason == realtime.ReasonClientDisconnect || reason == realtime.ReasonServerDisconnect {
			m.forget(conn)
		}
	})

	if err := conn.Connect(ctx); err != nil {
		m.log.Warn("socket connect failed", "error", err)
		return conn, fmt.Errorf("connect session: %w", err)
	}
	return conn, nil
}

// Handle returns the cached connection, or nil when none is live.
func (m *Manager) Handle() *realtime.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Release tears down the session on logout or explicit disconnect.
func (m *Manager) Release() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.connToken = ""
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	conn.RemoveAllHandlers()
	return err
}

// handleTokenExpired runs the refresh-and-reconnect flow: fetch a
// renewed credential, swap it into the existing handle, and force a
// reconnect. The handle identity is preserved so in-flight consumer
// references stay valid. A failed refresh is unrecoverable.
func (m *Manager) handleTokenExpired(conn *realtime.Conn, src auth.TokenSource) {
	m.log.Info("credential expired, refreshing")

	token, err := src.Refresh(context.Background())
	if err != nil || token == "" {
		m.log.Warn("token refresh failed", "error", err)
		m.mu.Lock()
		cb := m.onUnrecoverable
		m.mu.Unlock()
		if cb != nil {
			cb()
		}
		return
	}

	m.mu.Lock()
	if m.conn == conn {
		m.connToken = token
	}
	m.mu.Unlock()

	conn.SetAuthToken(token)
	if err := conn.Reconnect(context.Background()); err != nil {
		m.log.Warn("reconnect after refresh failed", "error", err)
	}
}

// forget drops the cached handle after a final disconnect so the next
// Acquire builds fresh. Transient drops never reach here; the
// transport's own reconnection reuses the handle.
func (m *Manager) forget(conn *realtime.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.connToken = ""
	}
	m.mu.Unlock()
}
