package transcript

import (
	"fmt"

	"github.com/remote-agent-terminal/agentchat/internal/event"
	"github.com/remote-agent-terminal/agentchat/internal/model"
)

// Discard reasons reported in Outcome.Reason.
const (
	ReasonNoMessage     = "no_message"
	ReasonNotAssistant  = "last_message_not_assistant"
	ReasonNoRunningTool = "no_running_tool"
	ReasonUnsupported   = "unsupported_event"
)

const errorNoteFormat = "\n\n*Error: %s*"

// AgentErrorTitle titles the notification raised for an agent error event.
const AgentErrorTitle = "Agent Error"

// Outcome describes what applying one event did.
type Outcome struct {
	// Applied is false when the event was discarded.
	Applied bool
	// Reason explains a discard or a no-op.
	Reason string
	// MessageID is the assistant message the event targeted.
	MessageID string
	// ToolID is the tool execution created or completed, if any.
	ToolID string
	// TurnEnded is set for terminal events.
	TurnEnded bool
	// Notification is set when the event must be surfaced to the user.
	Notification *model.Notification
}

// Apply folds one event into the latest assistant message.
//
// If the conversation is empty or its last message is not an assistant
// message the event is discarded: the peer is out of sync and the event has
// nowhere to go.
func (c *Conversation) Apply(ev event.Event) Outcome {
	e := c.last()
	if e == nil {
		return Outcome{Reason: ReasonNoMessage}
	}
	if e.role != model.RoleAssistant {
		return Outcome{Reason: ReasonNotAssistant, MessageID: e.id}
	}

	out := Outcome{Applied: true, MessageID: e.id}

	switch ev := ev.(type) {
	case event.Token:
		e.content.WriteString(ev.Content)

	case event.ToolStart:
		tool := model.ToolExecution{
			ID:     c.newID(),
			Name:   ev.Tool,
			Input:  ev.Input,
			Status: model.ToolStatusRunning,
		}
		e.tools = append(e.tools, len(c.tools))
		c.tools = append(c.tools, tool)
		out.ToolID = tool.ID

	case event.ToolEnd:
		pos, ok := c.lastRunningTool(e, ev.Tool)
		if !ok {
			// Duplicate or out-of-order end: nothing to complete.
			return Outcome{Applied: true, MessageID: e.id, Reason: ReasonNoRunningTool}
		}
		c.finishTool(pos, model.ToolStatusCompleted, ev.Output)
		out.ToolID = c.tools[pos].ID

	case event.AgentEnd:
		e.streaming = false
		out.TurnEnded = true

	case event.Error:
		fmt.Fprintf(&e.content, errorNoteFormat, ev.Message)
		for _, pos := range e.tools {
			if c.tools[pos].Status == model.ToolStatusRunning {
				c.finishTool(pos, model.ToolStatusFailed, ev.Message)
			}
		}
		e.streaming = false
		out.TurnEnded = true
		n := model.NewNotification(AgentErrorTitle, ev.Message)
		out.Notification = &n

	default:
		return Outcome{Reason: ReasonUnsupported, MessageID: e.id}
	}

	return out
}

// lastRunningTool finds the most recently started running tool with the given
// name. Matching is by name only; same-named concurrent tools resolve to the
// latest one.
func (c *Conversation) lastRunningTool(e *entry, name string) (int, bool) {
	for i := len(e.tools) - 1; i >= 0; i-- {
		tool := &c.tools[e.tools[i]]
		if tool.Name == name && tool.Status == model.ToolStatusRunning {
			return e.tools[i], true
		}
	}
	return 0, false
}

func (c *Conversation) finishTool(pos int, status model.ToolStatus, output string) {
	tool := &c.tools[pos]
	if !tool.Status.CanTransition(status) {
		return
	}
	tool.Output = &output
	tool.Status = status
}
