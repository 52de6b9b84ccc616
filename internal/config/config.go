// Package config loads agentchat settings from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/remote-agent-terminal/agentchat/internal/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTCHAT_"

// Duration is a time.Duration written as "3s" or "250ms" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Agent     AgentConfig     `toml:"agent"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	Storage   StorageConfig   `toml:"storage"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AgentConfig locates the agent socket. URL may be the page URL the UI is
// served from or a direct ws:// URL; Path overrides the socket path.
type AgentConfig struct {
	URL  string `toml:"url"`
	Path string `toml:"path"`
}

type ReconnectConfig struct {
	Delay       Duration `toml:"delay"`
	Multiplier  float64  `toml:"multiplier"`
	MaxDelay    Duration `toml:"max_delay"`
	MaxAttempts int      `toml:"max_attempts"`
	Jitter      bool     `toml:"jitter"`
}

// StorageConfig locates persisted state. An empty DBPath disables the
// transcript store; an empty RecordDir disables wire recordings.
type StorageConfig struct {
	DBPath    string `toml:"db_path"`
	RecordDir string `toml:"record_dir"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Agent:  AgentConfig{URL: "http://localhost:8000"},
		Reconnect: ReconnectConfig{
			Delay:      Duration(transport.DefaultReconnectDelay),
			Multiplier: 1.0,
		},
		Storage: StorageConfig{
			DBPath:    "data/agentchat.db",
			RecordDir: "data/recordings",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("ADDR", c.Server.Addr)
	c.Agent.URL = getEnv("AGENT_URL", c.Agent.URL)
	c.Agent.Path = getEnv("AGENT_PATH", c.Agent.Path)
	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Storage.RecordDir = getEnv("RECORD_DIR", c.Storage.RecordDir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	if v := getEnv("LOG_PRETTY", ""); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sLOG_PRETTY: %w", EnvPrefix, err)
		}
		c.Log.Pretty = pretty
	}
	if v := getEnv("RECONNECT_DELAY", ""); v != "" {
		if err := c.Reconnect.Delay.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid %sRECONNECT_DELAY: %w", EnvPrefix, err)
		}
	}
	if v := getEnv("RECONNECT_MAX_ATTEMPTS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sRECONNECT_MAX_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Reconnect.MaxAttempts = n
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server addr is required")
	}
	if strings.TrimSpace(c.Agent.URL) == "" {
		return fmt.Errorf("agent url is required")
	}
	if _, err := c.Endpoint(); err != nil {
		return err
	}
	r := c.Reconnect
	if r.Delay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("reconnect delays must not be negative")
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		return fmt.Errorf("reconnect multiplier must be >= 1, got %v", r.Multiplier)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("reconnect max_attempts must not be negative")
	}
	return nil
}

// Endpoint resolves the agent socket URL.
func (c Config) Endpoint() (string, error) {
	return transport.Endpoint(c.Agent.URL, c.Agent.Path)
}

// ReconnectPolicy converts the [reconnect] section.
func (c Config) ReconnectPolicy() transport.ReconnectPolicy {
	return transport.ReconnectPolicy{
		Delay:       time.Duration(c.Reconnect.Delay),
		Multiplier:  c.Reconnect.Multiplier,
		MaxDelay:    time.Duration(c.Reconnect.MaxDelay),
		Jitter:      c.Reconnect.Jitter,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}

// Transport builds the transport configuration for the agent connection.
func (c Config) Transport() (transport.Config, error) {
	endpoint, err := c.Endpoint()
	if err != nil {
		return transport.Config{}, err
	}
	tcfg := transport.DefaultConfig(endpoint)
	tcfg.Reconnect = c.ReconnectPolicy()
	return tcfg, nil
}
