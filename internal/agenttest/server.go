// Package agenttest provides an in-process agent backend for tests.
package agenttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/remote-agent-terminal/agentchat/internal/event"
)

// Reply maps an inbound user message to the frames the agent answers with.
type Reply func(message string) []string

// Server is a scripted agent speaking the chat protocol over a websocket.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	reply   Reply
	accepts int

	// Received carries every raw inbound frame.
	Received  chan []byte
	connected chan struct{}
}

// NewServer starts a server answering with reply. A nil reply sends nothing.
func NewServer(reply Reply) *Server {
	s := &Server{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		conns:     make(map[*websocket.Conn]struct{}),
		reply:     reply,
		Received:  make(chan []byte, 64),
		connected: make(chan struct{}, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", s.handle)
	s.srv = httptest.NewServer(mux)
	return s
}

// URL returns the ws:// socket URL.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/chat"
}

// Accepts returns how many connections were upgraded so far.
func (s *Server) Accepts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

// WaitConnection blocks until a new connection is accepted or timeout passes.
func (s *Server) WaitConnection(timeout time.Duration) bool {
	select {
	case <-s.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Broadcast writes frame to every open connection.
func (s *Server) Broadcast(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// DropAll closes every open connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}

// Close drops all connections and stops the listener.
func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.accepts++
	s.mu.Unlock()

	select {
	case s.connected <- struct{}{}:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.Received <- data:
		default:
		}

		s.mu.Lock()
		reply := s.reply
		s.mu.Unlock()
		if reply == nil {
			continue
		}
		msg, err := event.DecodeUserMessage(data)
		if err != nil {
			continue
		}
		for _, frame := range reply(msg) {
			s.mu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(frame))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Echo streams the message back as two tokens and ends the turn.
func Echo(message string) []string {
	half := len(message) / 2
	return []string{
		Token(message[:half]),
		Token(message[half:]),
		End(message),
	}
}

// Token builds a token frame.
func Token(content string) string {
	return mustEncode(event.Token{Content: content})
}

// ToolStart builds a tool_start frame.
func ToolStart(tool, input string) string {
	return mustEncode(event.ToolStart{Tool: tool, Input: input})
}

// ToolEnd builds a tool_end frame.
func ToolEnd(tool, output string) string {
	return mustEncode(event.ToolEnd{Tool: tool, Output: output})
}

// End builds an agent_end frame.
func End(output string) string {
	return mustEncode(event.AgentEnd{Output: output})
}

// Fail builds an error frame.
func Fail(message string) string {
	return mustEncode(event.Error{Message: message})
}

func mustEncode(ev event.Event) string {
	data, err := event.Encode(ev)
	if err != nil {
		panic(err)
	}
	return string(data)
}
