// Package session ties the transport, the event decoder and the conversation
// together into one chat session with a single turn in flight at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/remote-agent-terminal/agentchat/internal/buffer"
	"github.com/remote-agent-terminal/agentchat/internal/event"
	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/observability"
	"github.com/remote-agent-terminal/agentchat/internal/recorder"
	"github.com/remote-agent-terminal/agentchat/internal/transcript"
	"github.com/remote-agent-terminal/agentchat/internal/transport"
)

// User-visible notification texts.
const (
	titleConnectionLost  = "Connection Lost"
	descConnectionLost   = "Please wait for reconnection..."
	titleAgentBusy       = "Agent Busy"
	descAgentBusy        = "Please wait for the current response to finish."
	titleConnectionError = "Connection Error"
	descConnectionError  = "Failed to connect to the agent server."
)

const (
	defaultRecentFrames = 256
	persistTimeout      = 5 * time.Second
	persistQueue        = 16
)

// TurnStore persists completed turns.
type TurnStore interface {
	CreateSession(ctx context.Context, session *model.ChatSession) error
	SaveTurn(ctx context.Context, sessionID string, user, assistant model.Message) error
}

// Config holds configuration for a session.
type Config struct {
	// Transport configures the agent connection; Transport.Endpoint is required.
	Transport transport.Config

	// IDFunc mints message and tool ids. Defaults to random UUIDs.
	IDFunc transcript.IDFunc

	// Store, when set, receives every completed turn.
	Store TurnStore

	// RecordDir, when set, receives a wire recording of the session.
	RecordDir string

	// RecentFrames is the capacity of the in-memory frame history.
	RecentFrames int

	Logger *zerolog.Logger
}

// State is a snapshot of the session for observers.
type State struct {
	SessionID         string                `json:"sessionId"`
	Conversation      []model.Message       `json:"conversation"`
	Connection        model.ConnectionState `json:"connection"`
	ReconnectAttempts int                   `json:"reconnectAttempts"`
	Processing        bool                  `json:"processing"`
}

// turn tracks the single in-flight submission.
type turn struct {
	userID      string
	assistantID string
	started     time.Time
}

// finishedTurn is a completed turn waiting to be stored. idle is closed once
// it is.
type finishedTurn struct {
	user      model.Message
	assistant model.Message
	idle      chan struct{}
}

// Session is one chat with the agent.
type Session struct {
	id  string
	cfg Config
	log zerolog.Logger

	transport *transport.Transport
	recorder  *recorder.Recorder
	ring      *buffer.FrameRing

	mu         sync.Mutex
	conv       *transcript.Conversation
	processing bool
	current    *turn
	idle       chan struct{} // closed while no turn is in flight
	closed     bool
	done       chan struct{}

	persistCh   chan finishedTurn // nil without a Store
	persistDone chan struct{}

	obsMu    sync.RWMutex
	onNotify func(model.Notification)
	onChange func(State)
}

// New creates a session. Call Start to connect.
func New(cfg Config) (*Session, error) {
	if cfg.Transport.Endpoint == "" {
		return nil, fmt.Errorf("agent endpoint is required")
	}
	if cfg.RecentFrames <= 0 {
		cfg.RecentFrames = defaultRecentFrames
	}

	s := &Session{
		id:   uuid.NewString(),
		cfg:  cfg,
		conv: transcript.NewConversation(cfg.IDFunc),
		ring: buffer.NewFrameRing(cfg.RecentFrames),
		idle: make(chan struct{}),
		done: make(chan struct{}),
	}
	close(s.idle)

	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	base = base.With().Str("session_id", s.id).Logger()
	s.log = observability.Component(&base, "session")

	header := recorder.Header{Endpoint: cfg.Transport.Endpoint, Session: s.id}
	var err error
	if cfg.RecordDir != "" {
		s.recorder, err = recorder.Create(cfg.RecordDir, s.ring, header)
	} else {
		s.recorder, err = recorder.New(nil, s.ring, header)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	tcfg := cfg.Transport
	if tcfg.Logger == nil {
		tcfg.Logger = &base
	}
	s.transport = transport.New(tcfg, transport.Callbacks{
		OnFrame: s.handleFrame,
		OnState: s.handleTransportState,
		OnError: s.handleTransportError,
	})

	if cfg.Store != nil {
		s.persistCh = make(chan finishedTurn, persistQueue)
		s.persistDone = make(chan struct{})
		go s.persistLoop()
	}

	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Endpoint returns the agent socket URL.
func (s *Session) Endpoint() string {
	return s.transport.Endpoint()
}

// Start registers the session with the store and opens the connection.
// A failed dial is not an error here: it is notified and retried.
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.Store != nil {
		now := time.Now()
		err := s.cfg.Store.CreateSession(ctx, &model.ChatSession{
			ID:        s.id,
			Endpoint:  s.transport.Endpoint(),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}

	s.log.Info().Str("endpoint", s.transport.Endpoint()).Msg("session started")
	if err := s.transport.Connect(ctx); errors.Is(err, model.ErrTransportClosed) {
		return err
	}
	return nil
}

// SetOnNotify registers the notification observer.
func (s *Session) SetOnNotify(fn func(model.Notification)) {
	s.obsMu.Lock()
	s.onNotify = fn
	s.obsMu.Unlock()
}

// SetOnChange registers the state observer.
func (s *Session) SetOnChange(fn func(State)) {
	s.obsMu.Lock()
	s.onChange = fn
	s.obsMu.Unlock()
}

// Submit sends text as a new user turn.
//
// It fails with ErrBlocked when the connection is down or a turn is still
// awaiting its terminal event; in both cases a notification is raised and the
// conversation is left untouched.
func (s *Session) Submit(text string) error {
	s.mu.Lock()

	if !s.transport.IsConnected() {
		s.mu.Unlock()
		return s.block(model.ErrNotConnected, titleConnectionLost, descConnectionLost)
	}
	if s.processing {
		s.mu.Unlock()
		return s.block(model.ErrTurnInFlight, titleAgentBusy, descAgentBusy)
	}

	frame, err := event.EncodeUserMessage(text)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := s.transport.Send(frame); err != nil {
		s.mu.Unlock()
		return s.block(err, titleConnectionLost, descConnectionLost)
	}
	s.recordLocked(buffer.Outbound, frame)

	userID, assistantID := s.conv.BeginTurn(text)
	s.processing = true
	s.current = &turn{userID: userID, assistantID: assistantID, started: time.Now()}
	s.idle = make(chan struct{})
	s.mu.Unlock()

	s.log.Info().Str("message_id", assistantID).Msg("turn submitted")
	s.emitChange()
	return nil
}

func (s *Session) block(cause error, title, desc string) error {
	s.log.Debug().Err(cause).Msg("submission blocked")
	observability.RecordTurn("blocked", 0)
	s.notify(model.NewNotification(title, desc))
	return fmt.Errorf("%w: %w", model.ErrBlocked, cause)
}

// handleFrame runs on the transport read goroutine, once per inbound frame.
func (s *Session) handleFrame(data []byte) {
	ev, err := event.Decode(data)

	s.mu.Lock()
	s.recordLocked(buffer.Inbound, data)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("dropping undecodable frame")
		observability.RecordFrameReceived("decode_error")
		return
	}

	out := s.conv.Apply(ev)
	var finished *turn
	var idle chan struct{}
	if event.IsTerminal(ev) && s.processing {
		s.processing = false
		finished = s.current
		s.current = nil
		idle = s.idle
	}
	s.mu.Unlock()

	if !out.Applied {
		s.log.Debug().Str("type", string(ev.EventType())).Str("reason", out.Reason).Msg("event discarded")
		observability.RecordFrameReceived("discarded")
	} else {
		observability.RecordFrameReceived("applied")
	}

	if out.Notification != nil {
		s.notify(*out.Notification)
	}

	if finished != nil {
		outcome := string(ev.EventType())
		observability.RecordTurn(outcome, time.Since(finished.started))
		s.log.Info().Str("message_id", finished.assistantID).Str("outcome", outcome).Msg("turn finished")
		s.finish(finished, idle)
	}

	s.emitChange()
}

// recordLocked keeps outbound frames ahead of the replies they trigger.
// Callers hold s.mu.
func (s *Session) recordLocked(dir buffer.Direction, data []byte) {
	var err error
	if dir == buffer.Outbound {
		err = s.recorder.Outbound(data)
	} else {
		err = s.recorder.Inbound(data)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("direction", string(dir)).Msg("failed to record frame")
	}
}

// finish hands a completed turn to the store, or releases idle waiters
// directly when there is nothing to store.
func (s *Session) finish(t *turn, idle chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistCh == nil || s.closed {
		close(idle)
		return
	}
	user, _ := s.conv.Message(t.userID)
	assistant, _ := s.conv.Message(t.assistantID)
	// Blocks only when persistQueue turns are already waiting on the store.
	s.persistCh <- finishedTurn{user: user, assistant: assistant, idle: idle}
}

// persistLoop stores finished turns in completion order, off the transport
// read goroutine.
func (s *Session) persistLoop() {
	defer close(s.persistDone)
	for ft := range s.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.cfg.Store.SaveTurn(ctx, s.id, ft.user, ft.assistant); err != nil {
			s.log.Error().Err(err).Str("message_id", ft.assistant.ID).Msg("failed to persist turn")
		}
		cancel()
		close(ft.idle)
	}
}

func (s *Session) handleTransportState(st transport.State) {
	s.log.Info().Str("connection", st.Connection.String()).Int("reconnect_attempts", st.ReconnectAttempts).Msg("connection state changed")
	s.emitChange()
}

func (s *Session) handleTransportError(err error) {
	s.log.Error().Err(err).Msg("transport error")
	s.notify(model.NewNotification(titleConnectionError, descConnectionError))
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	ts := s.transport.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SessionID:         s.id,
		Conversation:      s.conv.Messages(),
		Connection:        ts.Connection,
		ReconnectAttempts: ts.ReconnectAttempts,
		Processing:        s.processing,
	}
}

// Processing reports whether a turn is awaiting its terminal event.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// RecentFrames returns up to n of the most recent raw frames, oldest first.
// n <= 0 returns everything retained.
func (s *Session) RecentFrames(n int) []buffer.Frame {
	return s.ring.Last(n)
}

// WaitConnected blocks until the agent connection is open.
func (s *Session) WaitConnected(ctx context.Context) error {
	return s.transport.WaitConnected(ctx)
}

// WaitIdle blocks until no turn is in flight and the last finished turn has
// been stored. An idle session reports nil even after Close.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	default:
	}

	select {
	case <-idle:
		return nil
	case <-s.done:
		select {
		case <-idle:
			return nil
		default:
			return model.ErrTransportClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the session down. A turn in flight stays unfinished.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	err := s.transport.Close()

	s.mu.Lock()
	if s.persistCh != nil {
		close(s.persistCh)
	}
	s.mu.Unlock()
	if s.persistDone != nil {
		<-s.persistDone
	}

	if rerr := s.recorder.Close(); rerr != nil && err == nil {
		err = rerr
	}
	s.log.Info().Msg("session closed")
	return err
}

func (s *Session) notify(n model.Notification) {
	s.obsMu.RLock()
	fn := s.onNotify
	s.obsMu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

func (s *Session) emitChange() {
	s.obsMu.RLock()
	fn := s.onChange
	s.obsMu.RUnlock()
	if fn != nil {
		fn(s.State())
	}
}
