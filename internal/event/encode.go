package event

import (
	"fmt"

	"github.com/goccy/go-json"
)

// UserMessage is the outbound frame sent once per user turn.
type UserMessage struct {
	Message string `json:"message"`
}

// wireEvent is the inbound frame layout. Only the fields of the given type are set.
type wireEvent struct {
	Type    Type    `json:"type"`
	Content *string `json:"content,omitempty"`
	Tool    *string `json:"tool,omitempty"`
	Input   *string `json:"input,omitempty"`
	Output  *string `json:"output,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// EncodeUserMessage builds the outbound {"message": text} frame.
func EncodeUserMessage(text string) ([]byte, error) {
	return json.Marshal(UserMessage{Message: text})
}

// DecodeUserMessage parses an outbound frame.
func DecodeUserMessage(raw []byte) (string, error) {
	var msg UserMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("failed to parse user message: %w", err)
	}
	return msg.Message, nil
}

// Encode serializes ev into its wire frame.
func Encode(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.EventType()}
	switch e := ev.(type) {
	case Token:
		w.Content = &e.Content
	case ToolStart:
		w.Tool = &e.Tool
		w.Input = &e.Input
	case ToolEnd:
		w.Tool = &e.Tool
		w.Output = &e.Output
	case AgentEnd:
		w.Output = &e.Output
	case Error:
		w.Error = &e.Message
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
	return json.Marshal(w)
}
