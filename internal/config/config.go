package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	RenderDir string `toml:"render_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Locales configures the supported locale set and the canonical locale.
type Locales struct {
	Canonical string   `toml:"canonical"`
	Supported []string `toml:"supported"`
}

// Pipeline contains generation state machine policy. The stale TTL, attempt
// ceiling, and backoff schedule are configuration rather than literals so
// operators can tune retry pressure without a rebuild.
type Pipeline struct {
	MaxAttempts          int `toml:"max_attempts"`
	StaleInFlightSeconds int `toml:"stale_in_flight_seconds"`
	BackoffBaseSeconds   int `toml:"backoff_base_seconds"`
	BackoffCapSeconds    int `toml:"backoff_cap_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	SweepBatchSize       int `toml:"sweep_batch_size"`
	TranslateWorkers     int `toml:"translate_workers"`
}

// Queue configures the job transport.
type Queue struct {
	URL              string `toml:"url"`
	TranslateSubject string `toml:"translate_subject"`
	PublishSubject   string `toml:"publish_subject"`
}

// Executor configures the external translation executor endpoint.
type Executor struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capability configures execution grant issuance.
type Capability struct {
	SigningKey   string   `toml:"signing_key"`
	TTLSeconds   int      `toml:"ttl_seconds"`
	Providers    []string `toml:"providers"`
	Models       []string `toml:"models"`
	MaxTokens    int      `toml:"max_tokens"`
	MaxLatencyMS int      `toml:"max_latency_ms"`
}

// Publish configures the render publish coordinator.
type Publish struct {
	WaitTimeoutSeconds  int `toml:"wait_timeout_seconds"`
	PollIntervalMS      int `toml:"poll_interval_ms"`
	CounterTTLDays      int `toml:"counter_ttl_days"`
	AllowlistTTLSeconds int `toml:"allowlist_ttl_seconds"`
}

// Limits caps overlay op payload sizes.
type Limits struct {
	MaxOps            int `toml:"max_ops"`
	MaxOpValueBytes   int `toml:"max_op_value_bytes"`
	MaxOverlayBytes   int `toml:"max_overlay_bytes"`
	MaxTranslateItems int `toml:"max_translate_items"`
	MaxTranslateChars int `toml:"max_translate_chars"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration for the glot daemon and CLI.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Locales    Locales    `toml:"locales"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Queue      Queue      `toml:"queue"`
	Executor   Executor   `toml:"executor"`
	Capability Capability `toml:"capability"`
	Publish    Publish    `toml:"publish"`
	Limits     Limits     `toml:"limits"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/glot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The third return value
// reports whether a config file was found on disk.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data, render, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.RenderDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StaleInFlight returns the TTL after which queued/running work is treated as abandoned.
func (c *Config) StaleInFlight() time.Duration {
	return time.Duration(c.Pipeline.StaleInFlightSeconds) * time.Second
}

// BackoffBase returns the base delay for retry backoff.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Pipeline.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the maximum retry backoff delay.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Pipeline.BackoffCapSeconds) * time.Second
}

// SweepInterval returns the retry sweeper period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Pipeline.SweepIntervalSeconds) * time.Second
}

// ExecutorTimeout returns the per-call translation executor timeout.
func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSeconds) * time.Second
}

// GrantTTL returns the execution grant lifetime.
func (c *Config) GrantTTL() time.Duration {
	return time.Duration(c.Capability.TTLSeconds) * time.Second
}

// PublishWaitTimeout bounds the synchronous canonical-locale wait.
func (c *Config) PublishWaitTimeout() time.Duration {
	return time.Duration(c.Publish.WaitTimeoutSeconds) * time.Second
}

// PublishPollInterval is the canonical-locale wait poll period.
func (c *Config) PublishPollInterval() time.Duration {
	return time.Duration(c.Publish.PollIntervalMS) * time.Millisecond
}

// AllowlistTTL is the widget allowlist cache lifetime.
func (c *Config) AllowlistTTL() time.Duration {
	return time.Duration(c.Publish.AllowlistTTLSeconds) * time.Second
}

// CounterTTL is the budget counter expiry.
func (c *Config) CounterTTL() time.Duration {
	return time.Duration(c.Publish.CounterTTLDays) * 24 * time.Hour
}

func resolveConfigPath(path string) (string, bool, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		def, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		candidate = def
	}
	expanded, err := expandPath(candidate)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is empty")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			trimmed = home
		} else {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}
