package model

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolStatus represents the lifecycle of a single tool execution.
type ToolStatus string

const (
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s ToolStatus) IsTerminal() bool {
	return s == ToolStatusCompleted || s == ToolStatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Only running -> completed and running -> failed are legal.
func (s ToolStatus) CanTransition(next ToolStatus) bool {
	return s == ToolStatusRunning && next.IsTerminal()
}

// ToolExecution is one tool invocation reported by the agent.
// Output is set iff Status is terminal.
type ToolExecution struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Input  string     `json:"input"`
	Output *string    `json:"output,omitempty"`
	Status ToolStatus `json:"status"`
}

// Clone returns a copy that shares no memory with t.
func (t ToolExecution) Clone() ToolExecution {
	if t.Output != nil {
		out := *t.Output
		t.Output = &out
	}
	return t
}

// Message is one entry of the conversation transcript.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Tools       []ToolExecution `json:"tools,omitempty"`
	IsStreaming bool            `json:"isStreaming,omitempty"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Tools != nil {
		tools := make([]ToolExecution, len(m.Tools))
		for i, t := range m.Tools {
			tools[i] = t.Clone()
		}
		m.Tools = tools
	}
	return m
}
