package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines runtime settings for shellgate.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Exec    ExecConfig    `yaml:"exec"`
	Session SessionConfig `yaml:"session"`
	Rate    RateConfig    `yaml:"rate_limit"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AuthToken, when non-empty, gates every API request behind a
	// bearer token check. Empty disables auth.
	AuthToken string `yaml:"auth_token"`
}

type ExecConfig struct {
	// AllowedCommands is the set of permitted command basenames, or the
	// single sentinel "*" for unrestricted mode.
	AllowedCommands []string `yaml:"allowed_commands"`
	TimeoutSeconds  int      `yaml:"command_timeout"`
	MaxOutputBytes  int      `yaml:"max_output_size"`
	// WorkDir pins the working directory of every subprocess. Empty
	// falls back to the user home directory at startup.
	WorkDir string `yaml:"workdir"`
}

type SessionConfig struct {
	TimeoutSeconds int `yaml:"session_timeout"`
	HistoryLimit   int `yaml:"history_limit"`
}

type RateConfig struct {
	// PerMinute caps requests admitted per client within a sliding
	// 60-second window.
	PerMinute int `yaml:"rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultAllowedCommands mirrors the stock restricted command set.
var DefaultAllowedCommands = []string{
	"ls", "cat", "pwd", "grep", "find", "git", "python3", "node", "npm",
	"pip", "curl", "wget", "wc", "head", "tail", "ps", "df", "free",
	"uname", "whoami", "date", "echo", "which",
}

// LoadConfig loads configuration from a YAML file and environment
// overrides. A missing path yields pure defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Exec: ExecConfig{
			AllowedCommands: append([]string(nil), DefaultAllowedCommands...),
			TimeoutSeconds:  30,
			MaxOutputBytes:  1 << 20,
		},
		Session: SessionConfig{
			TimeoutSeconds: 3600,
			HistoryLimit:   50,
		},
		Rate: RateConfig{
			PerMinute: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Exec.WorkDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve workdir: %w", err)
		}
		cfg.Exec.WorkDir = home
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SHELLGATE_ALLOWED_COMMANDS"); v != "" {
		cfg.Exec.AllowedCommands = splitCommands(v)
	}
	if v := os.Getenv("SHELLGATE_COMMAND_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SHELLGATE_MAX_OUTPUT_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.MaxOutputBytes = n
		}
	}
	if v := os.Getenv("SHELLGATE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rate.PerMinute = n
		}
	}
	if v := os.Getenv("SHELLGATE_SESSION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SHELLGATE_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.HistoryLimit = n
		}
	}
	if v := os.Getenv("SHELLGATE_WORKDIR"); v != "" {
		cfg.Exec.WorkDir = v
	}
	if v := os.Getenv("SHELLGATE_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("SHELLGATE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SHELLGATE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("SHELLGATE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SHELLGATE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitCommands(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Exec.TimeoutSeconds <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %d", c.Exec.TimeoutSeconds)
	}
	if c.Exec.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_size must be positive, got %d", c.Exec.MaxOutputBytes)
	}
	if c.Rate.PerMinute <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %d", c.Rate.PerMinute)
	}
	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %d", c.Session.TimeoutSeconds)
	}
	if c.Session.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.Session.HistoryLimit)
	}
	return nil
}

// Unrestricted reports whether the allowed-command set is the wildcard
// sentinel.
func (c *Config) Unrestricted() bool {
	return len(c.Exec.AllowedCommands) == 1 && c.Exec.AllowedCommands[0] == "*"
}

// ListenAddr joins host and port into a dialable address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DefaultConfigPath returns the default location for the config file.
func DefaultConfigPath() string {
	if path := os.Getenv("SHELLGATE_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".shellgate", "config.yaml")
}
