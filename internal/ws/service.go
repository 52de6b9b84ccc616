package ws

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/observability"
	"github.com/remote-agent-terminal/agentchat/internal/session"
)

// Observable is a session whose changes can be followed.
type Observable interface {
	ChatSession
	State() session.State
	SetOnChange(fn func(session.State))
	SetOnNotify(fn func(model.Notification))
}

// Service connects one chat session to its UI clients.
type Service struct {
	hub     *Hub
	handler *Handler
	log     zerolog.Logger
}

// NewService subscribes to sess and returns the bridge. The hub starts out
// holding the current state, so the first client is primed like any later one.
func NewService(sess Observable, logger *zerolog.Logger) *Service {
	log := observability.Component(logger, "ui_bridge")
	hub := NewHub()
	s := &Service{
		hub:     hub,
		handler: NewHandler(hub, sess, log),
		log:     log,
	}

	s.BroadcastState(sess.State())
	sess.SetOnChange(s.BroadcastState)
	sess.SetOnNotify(s.BroadcastNotification)
	return s
}

// ServeHTTP attaches a UI client.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.handler.HandleConnection(w, r); err != nil {
		s.log.Warn().Err(err).Msg("ui upgrade failed")
	}
}

// BroadcastState publishes a state snapshot. It is kept even with no client
// attached, for the next one to join.
func (s *Service) BroadcastState(st session.State) {
	data, err := s.encode(MessageTypeState, st)
	if err != nil {
		return
	}
	s.hub.PublishState(data)
}

// BroadcastNotification forwards a notification to every attached client.
// Nobody attached means nobody to tell.
func (s *Service) BroadcastNotification(n model.Notification) {
	if s.hub.ClientCount() == 0 {
		return
	}
	data, err := s.encode(MessageTypeNotification, n)
	if err != nil {
		return
	}
	s.hub.Broadcast(data)
}

func (s *Service) encode(t MessageType, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err == nil {
		var data []byte
		data, err = json.Marshal(&Message{Type: t, Payload: payload})
		if err == nil {
			return data, nil
		}
	}
	s.log.Error().Err(err).Str("type", string(t)).Msg("failed to marshal broadcast")
	return nil, err
}

// ClientCount returns the number of attached UI clients.
func (s *Service) ClientCount() int {
	return s.hub.ClientCount()
}

// Close detaches every UI client.
func (s *Service) Close() {
	s.hub.Close()
}
