package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/agentchat/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	policy := cfg.ReconnectPolicy()
	assert.Equal(t, transport.DefaultReconnectDelay, policy.Delay)
	assert.Zero(t, policy.MaxAttempts)

	endpoint, err := cfg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/chat", endpoint)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"

[agent]
url = "https://chat.example.com"
path = "/agent"

[reconnect]
delay = "500ms"
multiplier = 2.0
max_delay = "10s"
max_attempts = 5
jitter = true

[storage]
db_path = ""
record_dir = "/tmp/rec"

[log]
level = "debug"
pretty = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "", cfg.Storage.DBPath)
	assert.Equal(t, "/tmp/rec", cfg.Storage.RecordDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)

	tcfg, err := cfg.Transport()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/agent", tcfg.Endpoint)
	assert.Equal(t, transport.ReconnectPolicy{
		Delay:       500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
		MaxAttempts: 5,
	}, tcfg.Reconnect)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "[log]\nlevel = \"warn\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().Reconnect, cfg.Reconnect)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTCHAT_ADDR", ":7070")
	t.Setenv("AGENTCHAT_AGENT_URL", "ws://10.0.0.1:8000/ws/chat")
	t.Setenv("AGENTCHAT_RECONNECT_DELAY", "1s")
	t.Setenv("AGENTCHAT_RECONNECT_MAX_ATTEMPTS", "4")
	t.Setenv("AGENTCHAT_LOG_PRETTY", "true")

	cfg, err := Load(writeConfig(t, "[server]\naddr = \":9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, time.Second, cfg.ReconnectPolicy().Delay)
	assert.Equal(t, 4, cfg.ReconnectPolicy().MaxAttempts)

	endpoint, err := cfg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.1:8000/ws/chat", endpoint)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", "[server\naddr = 1"},
		{"bad duration", "[reconnect]\ndelay = \"soon\"\n"},
		{"shrinking multiplier", "[reconnect]\nmultiplier = 0.5\n"},
		{"negative attempts", "[reconnect]\nmax_attempts = -1\n"},
		{"bad agent url", "[agent]\nurl = \"ftp://example.com\"\n"},
		{"empty addr", "[server]\naddr = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("AGENTCHAT_LOG_PRETTY", "sometimes")
	_, err := Load("")
	assert.Error(t, err)
}
