// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the file Load reads.
const EnvironmentVariable = "BUREAU_EXEC_CONFIG"

// ChannelAddress is where the agent listens for one channel.
type ChannelAddress struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// String returns the address in host:port form for net.Listen.
func (a ChannelAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Config is the complete agent configuration.
type Config struct {
	Channels   ChannelsConfig   `yaml:"channels"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Sender     SenderConfig     `yaml:"sender"`
	Log        LogChannelConfig `yaml:"log"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChannelsConfig holds the three listening addresses. They must be
// pairwise distinct.
type ChannelsConfig struct {
	// Command receives commands from the controller.
	Command ChannelAddress `yaml:"command"`

	// Log carries log entries back to the controller.
	Log ChannelAddress `yaml:"log"`

	// BuildLog receives streamed output from a build tool.
	BuildLog ChannelAddress `yaml:"build_log"`
}

// ExecutorConfig tunes the command executor and process supervisor.
type ExecutorConfig struct {
	// PollInterval is how long the executor sleeps between checks of
	// the inbound queue. Default: 10ms
	PollInterval Duration `yaml:"poll_interval"`

	// KillTimeout bounds how long Kill waits for a terminated process
	// to be reaped. Default: 5s
	KillTimeout Duration `yaml:"kill_timeout"`

	// CaptureOutput forwards each line a spawned process writes to
	// stdout or stderr as a ProcessOutput log entry. Default: true
	CaptureOutput bool `yaml:"capture_output"`
}

// SenderConfig tunes the log sender.
type SenderConfig struct {
	// Interval is the fixed sleep between outbound queue polls.
	// Default: 50ms
	Interval Duration `yaml:"interval"`
}

// LogChannelConfig controls framing on the log channel.
type LogChannelConfig struct {
	// Compression is none, lz4, or zstd. Default: none
	Compression string `yaml:"compression"`

	// MaxFrameBytes bounds a single frame on any channel.
	// Default: 16 MiB
	MaxFrameBytes int `yaml:"max_frame_bytes"`
}

// SupervisorConfig tunes the daemon's restart loop.
type SupervisorConfig struct {
	// RestartDelay is the pause between one iteration's teardown and
	// the next iteration's bind. Default: 1s
	RestartDelay Duration `yaml:"restart_delay"`
}

// LoggingConfig controls the agent's own diagnostic log.
type LoggingConfig struct {
	// Level is debug, info, warn, or error. Default: info
	Level string `yaml:"level"`
}

// Duration is a time.Duration that reads "50ms"-style strings.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"50ms\"", node.Line)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration back in string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration every file is layered over.
func Default() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Command:  ChannelAddress{Host: "0.0.0.0", Port: 8888},
			Log:      ChannelAddress{Host: "0.0.0.0", Port: 8889},
			BuildLog: ChannelAddress{Host: "0.0.0.0", Port: 8890},
		},
		Executor: ExecutorConfig{
			PollInterval:  Duration(10 * time.Millisecond),
			KillTimeout:   Duration(5 * time.Second),
			CaptureOutput: true,
		},
		Sender: SenderConfig{
			Interval: Duration(50 * time.Millisecond),
		},
		Log: LogChannelConfig{
			Compression:   "none",
			MaxFrameBytes: 16 << 20,
		},
		Supervisor: SupervisorConfig{
			RestartDelay: Duration(time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Loader produces a configuration. The daemon calls it once per
// iteration.
type Loader func() (*Config, error)

// FileLoader returns a Loader that rereads path on every call.
func FileLoader(path string) Loader {
	return func() (*Config, error) { return LoadFile(path) }
}

// Load reads the file named by BUREAU_EXEC_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of the agent config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads, expands, and validates the file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes configuration bytes layered over Default. extension
// selects the syntax: ".json" and ".jsonc" are JSONC, anything else is
// YAML.
func Parse(data []byte, extension string) (*Config, error) {
	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document goes
		// through the same decoder and struct tags.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Channels.Command.Host = expandVars(c.Channels.Command.Host)
	c.Channels.Log.Host = expandVars(c.Channels.Log.Host)
	c.Channels.BuildLog.Host = expandVars(c.Channels.BuildLog.Host)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}. An unset or empty
// variable without a default expands to the empty string.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	channels := []struct {
		name    string
		address ChannelAddress
	}{
		{"channels.command", c.Channels.Command},
		{"channels.log", c.Channels.Log},
		{"channels.build_log", c.Channels.BuildLog},
	}
	seen := make(map[string]string, len(channels))
	for _, channel := range channels {
		if channel.address.Port < 0 || channel.address.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s.port %d out of range", channel.name, channel.address.Port))
			continue
		}
		// Port 0 asks the kernel for a free port; two channels on
		// port 0 never collide.
		if channel.address.Port == 0 {
			continue
		}
		key := channel.address.String()
		if other, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s and %s both use %s; each channel needs its own port", other, channel.name, key))
		}
		seen[key] = channel.name
	}

	if c.Executor.PollInterval <= 0 {
		errs = append(errs, errors.New("executor.poll_interval must be positive"))
	}
	if c.Executor.KillTimeout <= 0 {
		errs = append(errs, errors.New("executor.kill_timeout must be positive"))
	}
	if c.Sender.Interval <= 0 {
		errs = append(errs, errors.New("sender.interval must be positive"))
	}
	if c.Supervisor.RestartDelay < 0 {
		errs = append(errs, errors.New("supervisor.restart_delay must not be negative"))
	}
	switch c.Log.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("log.compression %q must be one of: none, lz4, zstd", c.Log.Compression))
	}
	if c.Log.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("log.max_frame_bytes must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be one of: debug, info, warn, error", c.Logging.Level))
	}

	return errors.Join(errs...)
}
