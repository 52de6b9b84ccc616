// Package event defines the agent event wire protocol and decodes inbound frames.
package event

// Type is the discriminant of an inbound agent event.
type Type string

const (
	TypeToken     Type = "token"
	TypeToolStart Type = "tool_start"
	TypeToolEnd   Type = "tool_end"
	TypeAgentEnd  Type = "agent_end"
	TypeError     Type = "error"
)

// Event is a decoded inbound agent event.
type Event interface {
	EventType() Type
}

// Token carries a streamed chunk of assistant text.
type Token struct {
	Content string
}

// ToolStart reports that the agent started a tool.
type ToolStart struct {
	Tool  string
	Input string
}

// ToolEnd reports that a tool finished.
type ToolEnd struct {
	Tool   string
	Output string
}

// AgentEnd terminates a turn successfully.
type AgentEnd struct {
	Output string
}

// Error terminates a turn with an agent-side failure.
type Error struct {
	Message string
}

func (Token) EventType() Type     { return TypeToken }
func (ToolStart) EventType() Type { return TypeToolStart }
func (ToolEnd) EventType() Type   { return TypeToolEnd }
func (AgentEnd) EventType() Type  { return TypeAgentEnd }
func (Error) EventType() Type     { return TypeError }

// IsTerminal reports whether ev ends a turn.
func IsTerminal(ev Event) bool {
	switch ev.EventType() {
	case TypeAgentEnd, TypeError:
		return true
	default:
		return false
	}
}
