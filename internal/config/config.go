// Package config provides TOML configuration file loading for the inkwell CLI.
// The configuration file lives at ~/.inkwell/config.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pseudocoder/inkwell/internal/channel"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
	"github.com/pseudocoder/inkwell/internal/guard"
)

// Config represents the configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Backend is the workspace backend, either host[:port] or an origin URL
	// such as https://api.example.com. An https or wss origin implies Secure.
	// Default: 127.0.0.1:8000
	Backend string `toml:"backend"`

	// Secure selects wss:// instead of ws://.
	// Default: false
	Secure bool `toml:"secure"`

	// Store is the path to the SQLite status journal.
	// Default: ~/.inkwell/inkwell.db
	Store string `toml:"store"`

	// MetricsAddr is the host:port for the Prometheus /metrics endpoint.
	// Empty disables it.
	MetricsAddr string `toml:"metrics_addr"`

	// Trace also opens the cross-session trace channel when watching.
	// Default: false
	Trace bool `toml:"trace"`

	Channel ChannelSection `toml:"channel"`
	Guard   GuardSection   `toml:"guard"`
}

// ChannelSection tunes the channel manager. Omitted or non-positive values
// fall back to the channel defaults.
type ChannelSection struct {
	MaxRetries          int     `toml:"max_retries"`
	BaseRetryDelayMs    int     `toml:"base_retry_delay_ms"`
	MaxDelayMs          int     `toml:"max_delay_ms"`
	HeartbeatIntervalMs int     `toml:"heartbeat_interval_ms"`
	SendRate            float64 `toml:"send_rate"`
	SendBurst           int     `toml:"send_burst"`
}

// GuardSection tunes guarded user actions such as feedback submission.
type GuardSection struct {
	// DelayMs is the debounce quiet period. Default: 300
	DelayMs int `toml:"delay_ms"`

	// Dedup suppresses a new submission while one is in flight. Default: true
	Dedup *bool `toml:"dedup"`
}

// ChannelConfig converts the section into channel options.
func (s ChannelSection) ChannelConfig() channel.Config {
	return channel.Config{
		MaxRetries:        s.MaxRetries,
		BaseRetryDelay:    time.Duration(s.BaseRetryDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(s.MaxDelayMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(s.HeartbeatIntervalMs) * time.Millisecond,
		SendRate:          s.SendRate,
		SendBurst:         s.SendBurst,
	}
}

// GuardOptions converts the section into options for a binding named name.
func (s GuardSection) GuardOptions(name string) guard.Options {
	delay := DefaultGuardDelay
	if s.DelayMs > 0 {
		delay = time.Duration(s.DelayMs) * time.Millisecond
	}
	dedup := true
	if s.Dedup != nil {
		dedup = *s.Dedup
	}
	return guard.Options{Name: name, Delay: delay, Dedup: dedup}
}

// BackendHost returns the backend as host[:port] and whether the secure
// scheme should be used. An origin URL's scheme overrides Secure.
func (c *Config) BackendHost() (string, bool) {
	backend := c.Backend
	if backend == "" {
		backend = DefaultBackend
	}
	if !strings.Contains(backend, "://") {
		return strings.TrimSuffix(backend, "/"), c.Secure
	}
	u, err := url.Parse(backend)
	if err != nil {
		return backend, c.Secure
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		return u.Host, true
	default:
		return u.Host, false
	}
}

// StorePath returns the journal path, defaulting to ~/.inkwell/inkwell.db.
func (c *Config) StorePath() (string, error) {
	if c.Store != "" {
		return c.Store, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultStoreName), nil
}

// Validate reports keys whose values cannot be used.
func (c *Config) Validate() error {
	var bad []string
	if c.Backend != "" && strings.Contains(c.Backend, "://") {
		u, err := url.Parse(c.Backend)
		if err != nil || u.Host == "" {
			bad = append(bad, "backend")
		} else {
			switch strings.ToLower(u.Scheme) {
			case "http", "https", "ws", "wss":
			default:
				bad = append(bad, "backend")
			}
		}
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			bad = append(bad, "metrics_addr")
		}
	}
	if len(bad) > 0 {
		return apperrors.ConfigInvalid(bad)
	}
	return nil
}

// DefaultDir returns ~/.inkwell.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// DefaultConfigPath returns the default config file location: ~/.inkwell/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// WriteDefault creates a commented starter config at the given path.
//
// Behavior:
//   - If the file already exists, returns false without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# inkwell configuration

# Workspace backend: host[:port] or an origin URL (https:// implies wss://)
backend = %q
secure = false

# Status journal (SQLite); defaults to ~/.inkwell/inkwell.db
# store = "/path/to/inkwell.db"

# Serve Prometheus metrics while watching, e.g. "127.0.0.1:9464"
# metrics_addr = ""

# Also follow the cross-session trace channel
trace = false

[channel]
max_retries = %d
base_retry_delay_ms = %d
max_delay_ms = %d
heartbeat_interval_ms = %d

[guard]
delay_ms = %d
dedup = true
`,
		DefaultBackend,
		channel.DefaultMaxRetries,
		channel.DefaultBaseRetryDelay.Milliseconds(),
		channel.DefaultMaxDelay.Milliseconds(),
		channel.DefaultHeartbeatInterval.Milliseconds(),
		DefaultGuardDelay.Milliseconds(),
	)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.inkwell/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns a config.not_found error if the file doesn't exist.
//   - Returns a config.parse_failed error if the file exists but cannot be parsed.
//   - Returns a config.invalid error if a value cannot be used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, apperrors.New(apperrors.CodeConfigNotFound, "config file not found: "+path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigParseFailed, "failed to parse config file "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
