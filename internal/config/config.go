package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Environment variables read by Home and ApplyEnv.
const (
	EnvHome     = "ONELIFE_HOME"
	EnvLogLevel = "ONELIFE_LOG_LEVEL"
	EnvWebAddr  = "ONELIFE_WEB_ADDR"
)

// Config holds application configuration.
type Config struct {
	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside <home>/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// WebAddr is the listen address of `onelife serve`.
	WebAddr string `json:"web_addr,omitempty"`

	// ReportLimit is the number of records listed per type in rendered reports.
	ReportLimit int `json:"report_limit,omitempty"`

	// CompletionTimeoutSeconds bounds a single call to the completion endpoint.
	CompletionTimeoutSeconds int `json:"completion_timeout_seconds,omitempty"`

	// DisableCompletion turns chat into record-keeping only; no endpoint is called.
	DisableCompletion bool `json:"disable_completion,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:                 "info",
		WebAddr:                  "127.0.0.1:3000",
		ReportLimit:              5,
		CompletionTimeoutSeconds: 60,
	}
}

// Home returns the data directory: $ONELIFE_HOME, or ~/.onelife.
func Home() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvHome)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".onelife"), nil
}

// Load loads configuration from baseDir/config.json, applies environment
// overrides and validates the result.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with ONELIFE_* environment variables that are set.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebAddr)); v != "" {
		cfg.WebAddr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.WebAddr, validation.Required),
		validation.Field(&c.ReportLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.CompletionTimeoutSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.DBMaxOpenConns, validation.Min(0)),
		validation.Field(&c.DBMaxIdleConns, validation.Min(0)),
	)
}

// SlogLevel returns LogLevel as a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// CompletionTimeout returns CompletionTimeoutSeconds as a duration.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutSeconds) * time.Second
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile loads configuration from a specific file path merged over defaults.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.ReportLimit = firstNonZero(overlay.ReportLimit, base.ReportLimit)
	result.CompletionTimeoutSeconds = firstNonZero(overlay.CompletionTimeoutSeconds, base.CompletionTimeoutSeconds)
	result.LogLevel = firstNonZero(overlay.LogLevel, base.LogLevel)
	result.WebAddr = firstNonZero(overlay.WebAddr, base.WebAddr)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.DisableCompletion = base.DisableCompletion || overlay.DisableCompletion

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstNonZero[T comparable](a, b T) T {
	var zero T
	if a != zero {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
