package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if cfg.Pipeline.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default max attempts %d, got %d", defaultMaxAttempts, cfg.Pipeline.MaxAttempts)
	}
	if cfg.Locales.Canonical != "en" {
		t.Fatalf("expected canonical locale en, got %q", cfg.Locales.Canonical)
	}
	if cfg.StaleInFlight() != 5*time.Minute {
		t.Fatalf("expected 5m stale TTL, got %s", cfg.StaleInFlight())
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[pipeline]
max_attempts = 3
backoff_base_seconds = 30

[executor]
base_url = "http://localhost:9000/"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("expected max_attempts 3, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.SweepBatchSize != defaultSweepBatchSize {
		t.Fatalf("expected default sweep batch, got %d", cfg.Pipeline.SweepBatchSize)
	}
	if cfg.Executor.BaseURL != "http://localhost:9000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Executor.BaseURL)
	}
}

func TestNormalizeLocalesDedupesAndPrependsCanonical(t *testing.T) {
	cfg := Default()
	cfg.Locales.Canonical = "EN"
	cfg.Locales.Supported = []string{"fr", "FR", " de ", ""}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	want := []string{"en", "fr", "de"}
	if len(cfg.Locales.Supported) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Locales.Supported)
	}
	for i, locale := range want {
		if cfg.Locales.Supported[i] != locale {
			t.Fatalf("expected %v, got %v", want, cfg.Locales.Supported)
		}
	}
}

func TestValidateRejectsBadPipeline(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.BackoffCapSeconds = cfg.Pipeline.BackoffBaseSeconds - 1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for cap below base")
	}
	if !strings.Contains(err.Error(), "backoff_cap_seconds") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown log format")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[limits]
max_ops = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject max_ops = 0")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected error writing over existing config")
	}
}
