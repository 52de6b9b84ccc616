package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/session"
)

var replayJSON bool

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Rebuild and print the transcript of a wire recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		defer f.Close()

		messages, err := session.Replay(f)
		if err != nil {
			return err
		}

		if replayJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(messages)
		}
		printTranscript(cmd.OutOrStdout(), messages)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output as JSON")
}

func printTranscript(w io.Writer, messages []model.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, msg := range messages {
		fmt.Fprintf(w, "== %s ==\n", msg.Role)
		for _, tool := range msg.Tools {
			fmt.Fprintf(w, "[%s %s] %s\n", tool.Name, tool.Status, tool.Input)
			if tool.Output != nil {
				fmt.Fprintf(w, "  -> %s\n", *tool.Output)
			}
		}
		if msg.Content != "" {
			fmt.Fprintln(w, msg.Content)
		}
		if msg.IsStreaming {
			fmt.Fprintln(w, "(unfinished)")
		}
		fmt.Fprintln(w)
	}
}
