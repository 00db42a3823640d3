package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by emits attempted while the transport is down.
var ErrNotConnected = errors.New("realtime: not connected")

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Options configures a connection.
type Options struct {
	// URL is the http(s) endpoint base; it is rewritten to ws(s).
	URL string
	// Path is the socket mount point, normally "/socket.io".
	Path string
	// Token is the bearer credential presented on dial.
	Token string
	// AckTimeout bounds how long an emit waits for its acknowledgement.
	AckTimeout time.Duration

	HandshakeTimeout     time.Duration
	AutoReconnect        bool
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Path == "" {
		o.Path = "/socket.io"
	}
	if o.AckTimeout == 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = 30 * time.Second
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Handler receives a server-pushed event payload. Handlers run on the
// read loop, so delivery order matches arrival order; they must not block.
type Handler func(payload json.RawMessage)

// Conn is a single realtime connection. It is safe for concurrent use.
// The handle stays valid across credential rotation and transient
// reconnects; consumers holding a *Conn never need to re-acquire one
// unless the session is torn down.
type Conn struct {
	opts Options
	log  *slog.Logger

	mu               sync.Mutex
	ws               *websocket.Conn
	state            State
	token            string
	intentionalClose bool
	rotating         bool

	writeMu sync.Mutex

	handlerMu      sync.RWMutex
	handlers       map[string][]Handler
	onConnect      []func()
	onDisconnect   []func(reason string)
	onConnectError []func(error)

	pendingMu   sync.Mutex
	pendingAcks map[string]chan AckResult

	recon *reconnector
}

// New creates a connection; Connect must be called to go live.
func New(opts Options) *Conn {
	opts.defaults()
	return &Conn{
		opts:        opts,
		log:         opts.Logger,
		state:       StateDisconnected,
		token:       opts.Token,
		handlers:    make(map[string][]Handler),
		pendingAcks: make(map[string]chan AckResult),
		recon: &reconnector{
			baseDelay:   opts.ReconnectBaseDelay,
			maxDelay:    opts.ReconnectMaxDelay,
			maxAttempts: opts.MaxReconnectAttempts,
		},
	}
}

// On registers a handler for a named server event.
func (c *Conn) On(event string, h Handler) {
	c.handlerMu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.handlerMu.Unlock()
}

// OnConnect registers a handler fired after every successful (re)connect.
func (c *Conn) OnConnect(h func()) {
	c.handlerMu.Lock()
	c.onConnect = append(c.onConnect, h)
	c.handlerMu.Unlock()
}

// OnDisconnect registers a handler fired with the disconnect reason.
func (c *Conn) OnDisconnect(h func(reason string)) {
	c.handlerMu.Lock()
	c.onDisconnect = append(c.onDisconnect, h)
	c.handlerMu.Unlock()
}

// OnConnectError registers a handler for dial failures. Connect errors
// are reported, not fatal: the transport's own retry logic may still
// bring the connection up.
func (c *Conn) OnConnectError(h func(error)) {
	c.handlerMu.Lock()
	c.onConnectError = append(c.onConnectError, h)
	c.handlerMu.Unlock()
}

// RemoveAllHandlers drops every registered handler. Called during
// session teardown so a replaced handle cannot leak deliveries.
func (c *Conn) RemoveAllHandlers() {
	c.handlerMu.Lock()
	c.handlers = make(map[string][]Handler)
	c.onConnect = nil
	c.onDisconnect = nil
	c.onConnectError = nil
	c.handlerMu.Unlock()
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetAuthToken replaces the credential used on the next dial. The
// handle identity is unchanged; pair with Reconnect to apply it.
func (c *Conn) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Conn) wsURL() (string, error) {
	endpoint := strings.Replace(c.opts.URL, "https://", "wss://", 1)
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	u.Path = c.opts.Path
	return u.String(), nil
}

// Connect dials the socket endpoint. Calling Connect on an already
// connected or connecting handle is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.intentionalClose = false
	token := c.token
	c.mu.Unlock()

	endpoint, err := c.wsURL()
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	// Websocket only, no long-polling fallback.
	ws, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		c.setState(StateDisconnected)
		err = fmt.Errorf("websocket dial: %w", err)
		c.emitConnectError(err)
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.state = StateConnected
	c.mu.Unlock()
	c.recon.markConnected()

	c.log.Debug("socket connected", "endpoint", endpoint)
	c.emitConnected()

	go c.readLoop(ws)

	return nil
}

// Close tears the connection down as a client-initiated disconnect.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.intentionalClose = true
	ws := c.ws
	c.ws = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.mu.Unlock()

	c.failPendingAcks("connection closed")

	if ws != nil {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"), deadline)
		err := ws.Close()
		c.emitDisconnected(ReasonClientDisconnect)
		return err
	}
	if wasConnected {
		c.emitDisconnected(ReasonClientDisconnect)
	}
	return nil
}

// Reconnect drops the transport and dials again with the currently
// stored credential, keeping the handle and its listeners intact.
// Used for credential rotation after a tokenExpired signal.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	c.rotating = true
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.failPendingAcks("reconnecting")

	if ws != nil {
		_ = ws.Close()
	}

	err := c.Connect(ctx)

	c.mu.Lock()
	c.rotating = false
	c.mu.Unlock()

	return err
}

// Emit sends an event without requesting an acknowledgement.
func (c *Conn) Emit(event string, v any) error {
	return c.write(Envelope{Event: event}, v)
}

// EmitWithAck sends an event and waits for the server's acknowledgement,
// up to the configured ack timeout. A timeout is reported as a non-OK
// AckResult with TimedOut set, not as an error: the caller's remedy is
// the same as for an explicit server rejection.
func (c *Conn) EmitWithAck(ctx context.Context, event string, v any) (AckResult, error) {
	id := uuid.New().String()

	ch := make(chan AckResult, 1)
	c.pendingMu.Lock()
	c.pendingAcks[id] = ch
	c.pendingMu.Unlock()

	if err := c.write(Envelope{Event: event, ID: id}, v); err != nil {
		c.dropPending(id)
		return AckResult{}, err
	}

	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		return ack, nil
	case <-timer.C:
		c.dropPending(id)
		return AckResult{OK: false, Err: "ack timeout", TimedOut: true}, nil
	case <-ctx.Done():
		c.dropPending(id)
		return AckResult{}, ctx.Err()
	}
}

func (c *Conn) write(env Envelope, v any) error {
	if v != nil {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		env.Payload = payload
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Event, err)
	}
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			c.handleReadError(ws, err)
			return
		}

		if env.Event == eventAck && env.ID != "" {
			var body ackBody
			if json.Unmarshal(env.Payload, &body) != nil {
				continue
			}
			c.pendingMu.Lock()
			ch, ok := c.pendingAcks[env.ID]
			if ok {
				delete(c.pendingAcks, env.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- AckResult{OK: body.OK, Err: body.Error, Data: body.Data}
			}
			continue
		}

		c.dispatch(env)
	}
}

func (c *Conn) handleReadError(ws *websocket.Conn, err error) {
	c.mu.Lock()
	// A stale read loop from a connection we already replaced must not
	// touch current state.
	if c.ws != ws && c.ws != nil {
		c.mu.Unlock()
		return
	}
	if c.intentionalClose || c.rotating {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.failPendingAcks("connection lost")

	reason := ReasonTransportClose
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reason = ReasonServerDisconnect
	}
	c.log.Debug("socket disconnected", "reason", reason, "error", err)
	c.emitDisconnected(reason)

	// Server-initiated closes are final; transient drops retry.
	if reason == ReasonTransportClose && c.opts.AutoReconnect && c.recon.shouldReconnect() {
		go c.scheduleReconnect()
	}
}

func (c *Conn) scheduleReconnect() {
	delay := c.recon.nextDelay()
	c.setState(StateReconnecting)
	c.log.Debug("socket reconnecting", "attempt", c.recon.attempt, "delay", delay)

	time.Sleep(delay)

	c.mu.Lock()
	if c.intentionalClose {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if err := c.Connect(context.Background()); err != nil {
		if c.opts.AutoReconnect && c.recon.shouldReconnect() {
			go c.scheduleReconnect()
		} else {
			c.setState(StateDisconnected)
		}
	}
}

func (c *Conn) dispatch(env Envelope) {
	c.handlerMu.RLock()
	handlers := append([]Handler(nil), c.handlers[env.Event]...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(env.Payload)
	}
}

func (c *Conn) emitConnected() {
	c.handlerMu.RLock()
	handlers := append([]func(){}, c.onConnect...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (c *Conn) emitDisconnected(reason string) {
	c.handlerMu.RLock()
	handlers := append([]func(string){}, c.onDisconnect...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(reason)
	}
}

func (c *Conn) emitConnectError(err error) {
	c.handlerMu.RLock()
	handlers := append([]func(error){}, c.onConnectError...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pendingAcks, id)
	c.pendingMu.Unlock()
}

// failPendingAcks resolves every in-flight ack as failed so senders
// are not left waiting across a teardown.
func (c *Conn) failPendingAcks(reason string) {
	c.pendingMu.Lock()
	for id, ch := range c.pendingAcks {
		ch <- AckResult{OK: false, Err: reason}
		delete(c.pendingAcks, id)
	}
	c.pendingMu.Unlock()
}

// reconnector computes exponential backoff with jitter, resetting the
// attempt count after a connection that held for over a minute.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}
