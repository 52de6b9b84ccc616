package session

import (
	"fmt"
	"io"

	"github.com/remote-agent-terminal/agentchat/internal/buffer"
	"github.com/remote-agent-terminal/agentchat/internal/event"
	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/recorder"
	"github.com/remote-agent-terminal/agentchat/internal/transcript"
)

// Replay rebuilds the transcript captured in a wire recording.
// Outbound frames begin turns and inbound frames are applied in order;
// undecodable frames are skipped the same way a live session drops them.
func Replay(r io.Reader) ([]model.Message, error) {
	conv := transcript.NewConversation(nil)

	_, err := recorder.Replay(r, func(e recorder.Entry) error {
		switch e.Direction {
		case buffer.Outbound:
			text, err := event.DecodeUserMessage([]byte(e.Data))
			if err != nil {
				return fmt.Errorf("at %.3fs: %w", e.Offset, err)
			}
			conv.BeginTurn(text)
		case buffer.Inbound:
			ev, err := event.Decode([]byte(e.Data))
			if err != nil {
				return nil
			}
			conv.Apply(ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replay recording: %w", err)
	}

	return conv.Messages(), nil
}
