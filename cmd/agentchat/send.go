package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/session"
	"github.com/remote-agent-terminal/agentchat/internal/transcript"
)

var (
	sendTimeout time.Duration
	sendRecord  bool
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one message and stream the reply to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		tcfg, err := cfg.Transport()
		if err != nil {
			return err
		}
		scfg := session.Config{Transport: tcfg, Logger: &logger}
		if sendRecord {
			if err := os.MkdirAll(cfg.Storage.RecordDir, 0755); err != nil {
				return fmt.Errorf("failed to create recording directory: %w", err)
			}
			scfg.RecordDir = cfg.Storage.RecordDir
		}

		sess, err := session.New(scfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()

		return sendOne(ctx, sess, strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Minute, "Give up if the reply has not finished by then")
	sendCmd.Flags().BoolVar(&sendRecord, "record", false, "Write a wire recording to the configured record_dir")
}

// streamPrinter writes the growing assistant reply as it streams in.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	status  io.Writer
	printed int
	tools   map[string]model.ToolStatus
}

func (p *streamPrinter) update(st session.State) {
	if len(st.Conversation) == 0 {
		return
	}
	msg := st.Conversation[len(st.Conversation)-1]
	if msg.Role != model.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tool := range msg.Tools {
		if p.tools[tool.ID] == tool.Status {
			continue
		}
		p.tools[tool.ID] = tool.Status
		fmt.Fprintf(p.status, "[%s %s]\n", tool.Name, tool.Status)
	}
	if len(msg.Content) > p.printed {
		fmt.Fprint(p.out, msg.Content[p.printed:])
		p.printed = len(msg.Content)
	}
}

// finish flushes whatever is left of the reply and ends the line.
func (p *streamPrinter) finish(st session.State) {
	p.update(st)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}

// sendOne submits text on a fresh session and blocks until the reply ends.
// It returns an error when the agent reports one.
func sendOne(ctx context.Context, sess *session.Session, text string, out, status io.Writer) error {
	printer := &streamPrinter{out: out, status: status, tools: make(map[string]model.ToolStatus)}
	sess.SetOnChange(printer.update)

	var mu sync.Mutex
	var agentErr string
	sess.SetOnNotify(func(n model.Notification) {
		if n.Title != transcript.AgentErrorTitle {
			return
		}
		mu.Lock()
		agentErr = n.Description
		mu.Unlock()
	})

	if err := sess.Start(ctx); err != nil {
		return err
	}
	if err := sess.WaitConnected(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", sess.Endpoint(), err)
	}
	if err := sess.Submit(text); err != nil {
		return err
	}
	if err := sess.WaitIdle(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no reply within timeout: %w", err)
		}
		return err
	}
	sess.SetOnChange(nil)
	printer.finish(sess.State())

	mu.Lock()
	defer mu.Unlock()
	if agentErr != "" {
		return fmt.Errorf("agent error: %s", agentErr)
	}
	return nil
}
