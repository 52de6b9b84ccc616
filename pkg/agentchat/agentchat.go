// Package agentchat exposes the chat session engine to programs embedding it.
package agentchat

import (
	"io"

	"github.com/remote-agent-terminal/agentchat/internal/buffer"
	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/session"
	"github.com/remote-agent-terminal/agentchat/internal/transport"
)

// Re-export types from internal packages for external use
type (
	Session         = session.Session
	Config          = session.Config
	State           = session.State
	TurnStore       = session.TurnStore
	TransportConfig = transport.Config
	ReconnectPolicy = transport.ReconnectPolicy
	Message         = model.Message
	ToolExecution   = model.ToolExecution
	ToolStatus      = model.ToolStatus
	Role            = model.Role
	Notification    = model.Notification
	ConnectionState = model.ConnectionState
	Frame           = buffer.Frame
)

// Sentinel errors returned by Session.Submit and the transport.
var (
	ErrBlocked         = model.ErrBlocked
	ErrNotConnected    = model.ErrNotConnected
	ErrTurnInFlight    = model.ErrTurnInFlight
	ErrTransportClosed = model.ErrTransportClosed
)

// New creates a session for the agent socket at endpoint with default
// transport settings. Call Start on the result to connect.
func New(endpoint string) (*Session, error) {
	return session.New(Config{Transport: transport.DefaultConfig(endpoint)})
}

// NewWithConfig creates a session from a full configuration.
func NewWithConfig(cfg Config) (*Session, error) {
	return session.New(cfg)
}

// DefaultTransportConfig returns the transport defaults for endpoint.
func DefaultTransportConfig(endpoint string) TransportConfig {
	return transport.DefaultConfig(endpoint)
}

// Endpoint derives the agent socket URL from the page URL a UI is served from.
// A ws:// or wss:// URL is used as is; path defaults to /ws/chat.
func Endpoint(pageURL, path string) (string, error) {
	return transport.Endpoint(pageURL, path)
}

// Replay rebuilds the transcript stored in a wire recording.
func Replay(r io.Reader) ([]Message, error) {
	return session.Replay(r)
}
