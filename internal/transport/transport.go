// Package transport owns the single websocket connection to the agent backend
// and keeps it alive across transient failures.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/observability"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Tool outputs can be large.
	maxMessageSize = 1 << 20

	// Outbound frames queued before Send reports ErrSendQueueFull.
	sendBufferSize = 64
)

// Config holds connection parameters.
type Config struct {
	Endpoint  string
	Reconnect ReconnectPolicy
	Header    http.Header
	Dialer    *websocket.Dialer

	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int

	Logger *zerolog.Logger
}

// DefaultConfig returns the reference settings for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:  endpoint,
		Reconnect: DefaultReconnectPolicy(),
	}
}

func (c *Config) applyDefaults() {
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if c.WriteWait <= 0 {
		c.WriteWait = writeWait
	}
	if c.PongWait <= 0 {
		c.PongWait = pongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = maxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = sendBufferSize
	}
}

// State is a snapshot of the connection lifecycle.
type State struct {
	Connection        model.ConnectionState `json:"connection"`
	ReconnectAttempts int                   `json:"reconnectAttempts"`
}

// Callbacks receive transport activity. All are optional.
// OnFrame is called from a single goroutine per connection, in network order.
type Callbacks struct {
	OnFrame func(data []byte)
	OnState func(state State)
	OnError func(err error)
}

// Transport manages one websocket connection with automatic reconnect.
type Transport struct {
	cfg Config
	cb  Callbacks
	log zerolog.Logger

	mu       sync.Mutex
	state    model.ConnectionState
	link     *link
	attempts int // reconnect attempts fired; never reset
	retries  int // reconnect attempts since the last open connection
	timer    *time.Timer
	closed   bool
	ready    chan struct{} // closed while connected
	done     chan struct{} // closed by Close
	rng      *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc

	emitMu sync.Mutex
}

// New creates a disconnected transport. Call Connect to dial.
func New(cfg Config, cb Callbacks) *Transport {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:    cfg,
		cb:     cb,
		log:    observability.Component(cfg.Logger, "transport"),
		state:  model.ConnectionDisconnected,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Endpoint returns the socket URL this transport dials.
func (t *Transport) Endpoint() string {
	return t.cfg.Endpoint
}

// State returns the current connection state and reconnect counter.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Connection: t.state, ReconnectAttempts: t.attempts}
}

// IsConnected returns true while a connection is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == model.ConnectionConnected
}

// Connect dials the endpoint. It is a no-op while a connection is open or
// being opened, so at most one connection is live at a time. A failed dial is
// reported through OnError and schedules a reconnect.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return model.ErrTransportClosed
	}
	if t.state != model.ConnectionDisconnected {
		t.mu.Unlock()
		return nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.state = model.ConnectionConnecting
	t.mu.Unlock()
	t.notifyState()

	t.log.Debug().Str("endpoint", t.cfg.Endpoint).Msg("dialing")
	ws, _, err := t.cfg.Dialer.DialContext(ctx, t.cfg.Endpoint, t.cfg.Header)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return model.ErrTransportClosed
	}
	if err != nil {
		t.state = model.ConnectionDisconnected
		t.scheduleReconnectLocked()
		t.mu.Unlock()

		err = fmt.Errorf("failed to connect to %s: %w", t.cfg.Endpoint, err)
		t.notifyState()
		t.reportError(err)
		return err
	}

	l := newLink(ws, t.cfg.SendBuffer)
	t.link = l
	t.state = model.ConnectionConnected
	t.retries = 0
	close(t.ready)
	t.mu.Unlock()

	t.log.Info().Str("endpoint", t.cfg.Endpoint).Msg("connected")
	observability.SetConnected(true)
	t.notifyState()

	go t.writePump(l)
	go t.readPump(l)
	return nil
}

// WaitConnected blocks until the transport is connected.
func (t *Transport) WaitConnected(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return model.ErrTransportClosed
	}
	ready := t.ready
	t.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-t.done:
		return model.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues a frame for delivery. There is no delivery confirmation.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return model.ErrTransportClosed
	}
	if t.state != model.ConnectionConnected || t.link == nil {
		return model.ErrNotConnected
	}

	select {
	case t.link.send <- data:
		return nil
	default:
		return model.ErrSendQueueFull
	}
}

// Close releases the connection and cancels any pending reconnect.
// It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	l := t.link
	t.link = nil
	wasConnected := t.state == model.ConnectionConnected
	t.state = model.ConnectionDisconnected
	t.cancel()
	close(t.done)
	t.mu.Unlock()

	if l != nil {
		l.shutdown(t.cfg.WriteWait)
	}
	if wasConnected {
		observability.SetConnected(false)
	}
	t.log.Debug().Msg("transport closed")
	t.notifyState()
	return nil
}

// handleClosed runs once per connection when its read loop ends.
func (t *Transport) handleClosed(l *link, readErr error) {
	l.close()

	t.mu.Lock()
	if t.link != l || t.closed {
		t.mu.Unlock()
		return
	}
	t.link = nil
	t.state = model.ConnectionDisconnected
	t.ready = make(chan struct{})
	t.scheduleReconnectLocked()
	t.mu.Unlock()

	t.log.Info().Err(readErr).Msg("connection closed")
	observability.SetConnected(false)
	t.notifyState()

	if websocket.IsUnexpectedCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		t.reportError(fmt.Errorf("connection lost: %w", readErr))
	}
}

// scheduleReconnectLocked arms exactly one reconnect timer. Callers hold t.mu.
func (t *Transport) scheduleReconnectLocked() {
	if t.closed || t.timer != nil {
		return
	}
	if t.cfg.Reconnect.Exhausted(t.retries) {
		t.log.Warn().Int("retries", t.retries).Msg("reconnect attempts exhausted")
		return
	}
	delay := t.cfg.Reconnect.NextDelay(t.retries+1, t.rng)
	t.log.Debug().Dur("delay", delay).Msg("reconnect scheduled")
	t.timer = time.AfterFunc(delay, t.reconnect)
}

func (t *Transport) reconnect() {
	t.mu.Lock()
	t.timer = nil
	if t.closed || t.state != model.ConnectionDisconnected {
		t.mu.Unlock()
		return
	}
	t.attempts++
	t.retries++
	attempt := t.attempts
	t.mu.Unlock()

	t.log.Info().Int("attempt", attempt).Msg("reconnecting")
	observability.RecordReconnect()
	t.notifyState()

	// Failures are reported and rescheduled inside Connect.
	_ = t.Connect(t.ctx)
}

func (t *Transport) readPump(l *link) {
	var readErr error
	defer func() {
		t.handleClosed(l, readErr)
	}()

	l.ws.SetReadLimit(t.cfg.MaxMessageSize)
	l.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	})

	for {
		_, message, err := l.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		l.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))

		if t.cb.OnFrame != nil {
			t.cb.OnFrame(message)
		}
	}
}

func (t *Transport) writePump(l *link) {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case message := <-l.send:
			l.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				t.writeFailed(l, err)
				return
			}
			observability.RecordFrameSent()
		case <-ticker.C:
			l.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.writeFailed(l, err)
				return
			}
		}
	}
}

// writeFailed reports the fault and drops the connection; the read loop then
// runs the closure path.
func (t *Transport) writeFailed(l *link, err error) {
	if l.isClosed() {
		return
	}
	t.reportError(fmt.Errorf("write failed: %w", err))
	l.close()
}

func (t *Transport) notifyState() {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if t.cb.OnState != nil {
		t.cb.OnState(t.State())
	}
}

func (t *Transport) reportError(err error) {
	t.log.Error().Err(err).Msg("transport error")
	if t.cb.OnError != nil {
		t.cb.OnError(err)
	}
}

// link is one physical connection and its outbound queue.
type link struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLink(ws *websocket.Conn, buffer int) *link {
	return &link{
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		l.ws.Close()
	})
}

func (l *link) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// shutdown sends a close frame before dropping the connection.
func (l *link) shutdown(wait time.Duration) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
	l.close()
}
