package event

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// validate checks field presence on the wire frames. `required` on a pointer
// field only demands presence, so empty strings are accepted.
var validate = validator.New()

// DecodeError is returned when an inbound frame is not a known agent event.
type DecodeError struct {
	Reason string // "syntax", "missing_type", "unknown_type", "invalid_fields"
	Raw    []byte
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error [%s]: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error [%s]", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type envelope struct {
	Type *string `json:"type" validate:"required"`
}

type tokenFrame struct {
	Content *string `json:"content" validate:"required"`
}

type toolStartFrame struct {
	Tool  *string `json:"tool" validate:"required"`
	Input *string `json:"input" validate:"required"`
}

type toolEndFrame struct {
	Tool   *string `json:"tool" validate:"required"`
	Output *string `json:"output" validate:"required"`
}

type agentEndFrame struct {
	Output *string `json:"output" validate:"required"`
}

type errorFrame struct {
	Error *string `json:"error" validate:"required"`
}

// Decode parses one inbound frame into a typed Event.
// Malformed frames and unknown discriminants yield a *DecodeError.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "syntax", Raw: raw, Err: err}
	}
	if err := validate.Struct(env); err != nil {
		return nil, &DecodeError{Reason: "missing_type", Raw: raw, Err: err}
	}

	switch Type(*env.Type) {
	case TypeToken:
		var f tokenFrame
		if err := decodeFrame(raw, &f); err != nil {
			return nil, err
		}
		return Token{Content: *f.Content}, nil

	case TypeToolStart:
		var f toolStartFrame
		if err := decodeFrame(raw, &f); err != nil {
			return nil, err
		}
		return ToolStart{Tool: *f.Tool, Input: *f.Input}, nil

	case TypeToolEnd:
		var f toolEndFrame
		if err := decodeFrame(raw, &f); err != nil {
			return nil, err
		}
		return ToolEnd{Tool: *f.Tool, Output: *f.Output}, nil

	case TypeAgentEnd:
		var f agentEndFrame
		if err := decodeFrame(raw, &f); err != nil {
			return nil, err
		}
		return AgentEnd{Output: *f.Output}, nil

	case TypeError:
		var f errorFrame
		if err := decodeFrame(raw, &f); err != nil {
			return nil, err
		}
		return Error{Message: *f.Error}, nil

	default:
		return nil, &DecodeError{
			Reason: "unknown_type",
			Raw:    raw,
			Err:    fmt.Errorf("unknown event type %q", *env.Type),
		}
	}
}

// decodeFrame unmarshals raw into the per-type frame and checks field presence.
func decodeFrame(raw []byte, frame any) error {
	if err := json.Unmarshal(raw, frame); err != nil {
		return &DecodeError{Reason: "invalid_fields", Raw: raw, Err: err}
	}
	if err := validate.Struct(frame); err != nil {
		return &DecodeError{Reason: "invalid_fields", Raw: raw, Err: err}
	}
	return nil
}
