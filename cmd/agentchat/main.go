// Command agentchat bridges a streaming agent backend to chat clients.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/remote-agent-terminal/agentchat/internal/config"
	"github.com/remote-agent-terminal/agentchat/internal/observability"
)

var (
	configPath string
	logLevel   string
	agentURL   string
)

var rootCmd = &cobra.Command{
	Use:   "agentchat",
	Short: "Streaming agent chat bridge",
	Long: `Agentchat connects to an agent backend over a websocket, rebuilds the
streamed events into a chat transcript, and serves that transcript to UI
clients over HTTP and websockets.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent", "", "Agent page or socket URL override")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if agentURL != "" {
		cfg.Agent.URL = agentURL
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return observability.InitLogger("agentchat", cfg.Log.Level, cfg.Log.Pretty)
}
