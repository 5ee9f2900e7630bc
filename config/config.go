// Package config loads semedit settings from TOML with environment overrides.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/semedit/languages"
)

//go:embed default.toml
var defaultTOML string

// Config holds all semedit settings.
type Config struct {
	LogLevel         string                     `toml:"log_level"`
	WorkingDirectory string                     `toml:"working_directory"`
	Format           *bool                      `toml:"format"`
	ContextLines     int                        `toml:"context_lines"`
	DiffContext      int                        `toml:"diff_context"`
	MaxChain         int                        `toml:"max_chain"`
	RuleCacheTTL     Duration                   `toml:"rule_cache_ttl"`
	Web              WebConfig                  `toml:"web"`
	Formatters       map[string]FormatterConfig `toml:"formatters"`
}

// WebConfig configures the websocket transport.
type WebConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// FormatterConfig overrides a language's formatter.
type FormatterConfig struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"`
	Disabled bool     `toml:"disabled"`
}

// Duration is a time.Duration written as a string such as "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseError reports a malformed config file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Dir returns the config directory.
// Resolution order: $XDG_CONFIG_HOME/semedit > ~/.config/semedit
func Dir() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "semedit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "semedit-config")
	}
	return filepath.Join(home, ".config", "semedit")
}

// Path returns the config file path. $SEMEDIT_CONFIG wins over Dir.
func Path() string {
	if p := os.Getenv("SEMEDIT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the embedded default configuration.
func Default() *Config {
	var cfg Config
	if _, err := toml.Decode(defaultTOML, &cfg); err != nil {
		panic("semedit: invalid embedded default.toml: " + err.Error())
	}
	return &cfg
}

// DefaultTOML returns the embedded default configuration text.
func DefaultTOML() string { return defaultTOML }

// Load reads the config at Path and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile(Path())
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadFile reads path, filling missing fields from defaults. A missing file
// yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ", "))
	}
	cfg.fillDefaults(Default())
	return &cfg, nil
}

func (c *Config) fillDefaults(d *Config) {
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Format == nil {
		c.Format = d.Format
	}
	if c.ContextLines == 0 {
		c.ContextLines = d.ContextLines
	}
	if c.DiffContext == 0 {
		c.DiffContext = d.DiffContext
	}
	if c.MaxChain == 0 {
		c.MaxChain = d.MaxChain
	}
	if c.RuleCacheTTL.Duration == 0 {
		c.RuleCacheTTL = d.RuleCacheTTL
	}
	if c.Web.Addr == "" {
		c.Web.Addr = d.Web.Addr
	}
}

// ApplyEnv applies SEMEDIT_WORKDIR, SEMEDIT_DEBUG and SEMEDIT_FORMAT.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if dir := getenv("SEMEDIT_WORKDIR"); dir != "" {
		c.WorkingDirectory = dir
	}
	if v := getenv("SEMEDIT_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil && on {
			c.LogLevel = "debug"
		}
	}
	if v := getenv("SEMEDIT_FORMAT"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Format = &on
		}
	}
}

// FormatEnabled reports whether formatters run after edits.
func (c *Config) FormatEnabled() bool {
	return c.Format == nil || *c.Format
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate returns warnings for settings that will be ignored or clamped.
func (c *Config) Validate(reg *languages.Registry) []string {
	var warnings []string
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		warnings = append(warnings, fmt.Sprintf("unknown log_level %q, using info", c.LogLevel))
	}
	if c.ContextLines < 0 || c.DiffContext < 0 || c.MaxChain < 0 {
		warnings = append(warnings, "negative context_lines, diff_context or max_chain fall back to defaults")
	}
	for name, f := range c.Formatters {
		if _, ok := reg.ByName(name); !ok {
			warnings = append(warnings, fmt.Sprintf("formatter for unknown language %q", name))
		}
		if !f.Disabled && f.Command == "" {
			warnings = append(warnings, fmt.Sprintf("formatter for %q has no command", name))
		}
	}
	return warnings
}

// Registry builds the language registry with formatter settings applied.
func (c *Config) Registry() *languages.Registry {
	reg := languages.Default()
	if !c.FormatEnabled() {
		return reg.WithoutFormatters()
	}
	for name, f := range c.Formatters {
		switch {
		case f.Disabled:
			reg.SetFormatter(name, nil)
		case f.Command != "":
			reg.SetFormatter(name, &languages.CommandFormatter{Command: f.Command, Args: f.Args})
		}
	}
	return reg
}
