// Package transcript folds decoded agent events into the conversation.
//
// The Conversation owns every message and tool execution it creates. Messages
// live in an ordered slice with an id index; tool executions live in a separate
// arena and each message keeps the ordered arena positions of its tools, so
// lookups never splice or copy slices in place.
package transcript

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/remote-agent-terminal/agentchat/internal/model"
)

// IDFunc mints identifiers for messages and tool executions.
type IDFunc func() string

// entry is the arena record for one message.
type entry struct {
	id        string
	role      model.Role
	content   strings.Builder
	tools     []int // positions in Conversation.tools, in start order
	streaming bool
	sum       uint64 // content digest taken when a user message is created
}

// Conversation is the in-memory transcript. It is not safe for concurrent use;
// the owning session serializes access.
type Conversation struct {
	entries []*entry
	index   map[string]int
	tools   []model.ToolExecution
	newID   IDFunc
}

// NewConversation creates an empty conversation. A nil idFunc uses random UUIDs.
func NewConversation(idFunc IDFunc) *Conversation {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return &Conversation{
		index: make(map[string]int),
		newID: idFunc,
	}
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.entries)
}

// BeginTurn appends the user message and an empty streaming assistant
// placeholder. It returns both message ids.
func (c *Conversation) BeginTurn(text string) (userID, assistantID string) {
	// A turn abandoned by a dropped connection never got its terminal event.
	// Finalize it so only the new placeholder is streaming.
	if last := c.last(); last != nil && last.streaming {
		last.streaming = false
	}

	user := c.appendEntry(model.RoleUser)
	user.content.WriteString(text)
	user.sum = xxhash.Sum64String(text)

	assistant := c.appendEntry(model.RoleAssistant)
	assistant.streaming = true

	return user.id, assistant.id
}

func (c *Conversation) appendEntry(role model.Role) *entry {
	e := &entry{id: c.newID(), role: role}
	c.index[e.id] = len(c.entries)
	c.entries = append(c.entries, e)
	return e
}

func (c *Conversation) last() *entry {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

// Messages returns a deep copy of the transcript.
func (c *Conversation) Messages() []model.Message {
	out := make([]model.Message, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, c.snapshot(e))
	}
	return out
}

// Message returns a copy of the message with the given id.
func (c *Conversation) Message(id string) (model.Message, bool) {
	pos, ok := c.index[id]
	if !ok {
		return model.Message{}, false
	}
	return c.snapshot(c.entries[pos]), true
}

// Last returns a copy of the latest message.
func (c *Conversation) Last() (model.Message, bool) {
	e := c.last()
	if e == nil {
		return model.Message{}, false
	}
	return c.snapshot(e), true
}

func (c *Conversation) snapshot(e *entry) model.Message {
	msg := model.Message{
		ID:          e.id,
		Role:        e.role,
		Content:     e.content.String(),
		IsStreaming: e.streaming,
	}
	if e.role == model.RoleAssistant {
		msg.Tools = make([]model.ToolExecution, 0, len(e.tools))
		for _, pos := range e.tools {
			msg.Tools = append(msg.Tools, c.tools[pos].Clone())
		}
	}
	return msg
}

// Check verifies the transcript invariants and returns the first violation.
func (c *Conversation) Check() error {
	streaming := 0
	for i, e := range c.entries {
		if pos, ok := c.index[e.id]; !ok || pos != i {
			return fmt.Errorf("message %s: id index out of sync", e.id)
		}
		if e.streaming {
			streaming++
			if e.role != model.RoleAssistant {
				return fmt.Errorf("message %s: user message marked streaming", e.id)
			}
			if i != len(c.entries)-1 {
				return fmt.Errorf("message %s: streaming message is not the latest", e.id)
			}
		}
		if e.role == model.RoleUser {
			if len(e.tools) > 0 {
				return fmt.Errorf("message %s: user message owns tool executions", e.id)
			}
			if xxhash.Sum64String(e.content.String()) != e.sum {
				return fmt.Errorf("message %s: user message changed after creation", e.id)
			}
		}
		for _, pos := range e.tools {
			tool := c.tools[pos]
			if tool.Status.IsTerminal() != (tool.Output != nil) {
				return fmt.Errorf("tool %s: output presence does not match status %s", tool.ID, tool.Status)
			}
		}
	}
	if streaming > 1 {
		return fmt.Errorf("%d messages are streaming", streaming)
	}
	if len(c.index) != len(c.entries) {
		return fmt.Errorf("duplicate message ids")
	}
	return nil
}
