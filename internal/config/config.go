// Package config provides configuration types, defaults, and persistence for fancyterm.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/fancyterm/internal/log"
	"github.com/zjrosen/fancyterm/internal/tracing"
)

// Config holds all configuration options for fancyterm.
type Config struct {
	Display DisplayConfig  `mapstructure:"display"`
	Session SessionConfig  `mapstructure:"session"`
	Process ProcessConfig  `mapstructure:"process"`
	History HistoryConfig  `mapstructure:"history"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// DisplayConfig controls how output is rendered.
type DisplayConfig struct {
	EchoInput         bool          `mapstructure:"echo_input"`          // Echo submitted lines into the output
	HighlightOnOutput bool          `mapstructure:"highlight_on_output"` // Ring the bell on output while unfocused
	StripANSI         bool          `mapstructure:"strip_ansi"`          // Remove escape sequences from child output
	Wrap              bool          `mapstructure:"wrap"`                // Soft-wrap long lines
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`    // Output dispatch period
	Colors            ColorConfig   `mapstructure:"colors"`
}

// ColorConfig holds hex colors per output tag.
type ColorConfig struct {
	Stdout string `mapstructure:"stdout"`
	Stderr string `mapstructure:"stderr"`
	Stdin  string `mapstructure:"stdin"`
	System string `mapstructure:"system"`
	Prompt string `mapstructure:"prompt"`
}

// SessionConfig holds window-level behavior.
type SessionConfig struct {
	ConfirmOnClose bool `mapstructure:"confirm_on_close"`
	AlwaysOnTop    bool `mapstructure:"always_on_top"`
}

// ProcessConfig controls how children are started and stopped.
type ProcessConfig struct {
	// Interpreter is prepended to the command, e.g. ["python3", "-u"].
	Interpreter []string `mapstructure:"interpreter"`
	// Shell overrides the argv prefix for "!command" lines.
	Shell []string `mapstructure:"shell"`
	// Env holds extra KEY=VALUE pairs for the command's environment.
	Env              []string      `mapstructure:"env"`
	TerminateTimeout time.Duration `mapstructure:"terminate_timeout"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout"`
}

// HistoryConfig controls input history persistence.
type HistoryConfig struct {
	Persist    bool   `mapstructure:"persist"`
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// Preferences are the toggles a user can flip at runtime. They are saved
// back into the config file and picked up again on hot reload.
type Preferences struct {
	EchoInput         bool
	HighlightOnOutput bool
	ConfirmOnClose    bool
	AlwaysOnTop       bool
}

// Preferences extracts the runtime toggles.
func (c Config) Preferences() Preferences {
	return Preferences{
		EchoInput:         c.Display.EchoInput,
		HighlightOnOutput: c.Display.HighlightOnOutput,
		ConfirmOnClose:    c.Session.ConfirmOnClose,
		AlwaysOnTop:       c.Session.AlwaysOnTop,
	}
}

// Dir returns ~/.config/fancyterm, or "" if the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fancyterm")
}

// DefaultConfigPath returns the user-level config file path.
func DefaultConfigPath() string {
	return joinDir("config.yaml")
}

// DefaultHistoryPath returns the default history database path.
func DefaultHistoryPath() string {
	return joinDir("history.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	return joinDir(filepath.Join("traces", "traces.jsonl"))
}

func joinDir(name string) string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Display: DisplayConfig{
			EchoInput:         true,
			HighlightOnOutput: false,
			StripANSI:         true,
			Wrap:              true,
			RefreshInterval:   20 * time.Millisecond,
			Colors: ColorConfig{
				Stdout: "#d4d4d4",
				Stderr: "#f44747",
				Stdin:  "#ce9178",
				System: "#569cd6",
				Prompt: "#00FF00",
			},
		},
		Process: ProcessConfig{
			TerminateTimeout: 1200 * time.Millisecond,
			DrainTimeout:     2 * time.Second,
		},
		History: HistoryConfig{
			Persist:    true,
			Path:       DefaultHistoryPath(),
			MaxEntries: 500,
		},
		Tracing: tracing.Config{
			Enabled:      false,
			Exporter:     tracing.ExporterFile,
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// SetDefaults registers every default with v so unset keys unmarshal to
// the values in Defaults.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("display.echo_input", d.Display.EchoInput)
	v.SetDefault("display.highlight_on_output", d.Display.HighlightOnOutput)
	v.SetDefault("display.strip_ansi", d.Display.StripANSI)
	v.SetDefault("display.wrap", d.Display.Wrap)
	v.SetDefault("display.refresh_interval", d.Display.RefreshInterval)
	v.SetDefault("display.colors.stdout", d.Display.Colors.Stdout)
	v.SetDefault("display.colors.stderr", d.Display.Colors.Stderr)
	v.SetDefault("display.colors.stdin", d.Display.Colors.Stdin)
	v.SetDefault("display.colors.system", d.Display.Colors.System)
	v.SetDefault("display.colors.prompt", d.Display.Colors.Prompt)
	v.SetDefault("session.confirm_on_close", d.Session.ConfirmOnClose)
	v.SetDefault("session.always_on_top", d.Session.AlwaysOnTop)
	v.SetDefault("process.terminate_timeout", d.Process.TerminateTimeout)
	v.SetDefault("process.drain_timeout", d.Process.DrainTimeout)
	v.SetDefault("history.persist", d.History.Persist)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.max_entries", d.History.MaxEntries)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// Load reads the config file at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Display.RefreshInterval <= 0 {
		return fmt.Errorf("display.refresh_interval must be positive, got %s", c.Display.RefreshInterval)
	}
	colors := []struct{ key, value string }{
		{"stdout", c.Display.Colors.Stdout},
		{"stderr", c.Display.Colors.Stderr},
		{"stdin", c.Display.Colors.Stdin},
		{"system", c.Display.Colors.System},
		{"prompt", c.Display.Colors.Prompt},
	}
	for _, col := range colors {
		if col.value != "" && !hexColor.MatchString(col.value) {
			return fmt.Errorf("display.colors.%s must be a hex color like #RRGGBB, got %q", col.key, col.value)
		}
	}
	if c.Process.TerminateTimeout <= 0 {
		return fmt.Errorf("process.terminate_timeout must be positive, got %s", c.Process.TerminateTimeout)
	}
	for _, kv := range c.Process.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("process.env entries must look like KEY=VALUE, got %q", kv)
		}
	}
	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative, got %d", c.History.MaxEntries)
	}
	return c.Tracing.Validate()
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# fancyterm configuration

# Output display
display:
  echo_input: true            # Echo each submitted line into the output
  highlight_on_output: false  # Ring the terminal bell on output while the window is unfocused
  strip_ansi: true            # Remove escape sequences the child prints
  wrap: true                  # Soft-wrap long lines
  refresh_interval: 20ms      # How often queued output is flushed to the screen
  colors:
    stdout: "#d4d4d4"
    stderr: "#f44747"
    stdin: "#ce9178"
    system: "#569cd6"
    prompt: "#00FF00"

# Window behavior
session:
  confirm_on_close: false     # Ask before closing while the command is running
  always_on_top: false        # Ask the terminal to keep the window raised (where supported)

# Child process handling
process:
  terminate_timeout: 1.2s     # Grace period between the stop request and a forced kill
  # interpreter: ["python3", "-u"]   # Prefix prepended to the command
  # shell: ["/bin/bash", "-c"]       # Shell used for "!command" lines
  # env: ["PYTHONUNBUFFERED=1"]      # Extra environment for the command

# Input history (Up/Down in the input line)
history:
  persist: true               # Keep history across runs, per command
  max_entries: 500
  # path: ~/.config/fancyterm/history.db

# Process lifecycle tracing
# tracing:
#   enabled: false
#   exporter: file            # none, file, stdout, otlp
#   file_path: ~/.config/fancyterm/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
