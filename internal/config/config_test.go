package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want slog.Level
	}{
		{"debug", "DEBUG", slog.LevelDebug},
		{"info", "INFO", slog.LevelInfo},
		{"warn", "WARN", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLogLevel(tt.in); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REVIEWKIT_REVIEWS_PER_BATCH", "")
	t.Setenv("REVIEWKIT_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.ReviewsPerBatch != 20 {
		t.Errorf("ReviewsPerBatch = %d, want 20", cfg.ReviewsPerBatch)
	}
	if cfg.MaxConcurrentBatches != 20 {
		t.Errorf("MaxConcurrentBatches = %d, want 20", cfg.MaxConcurrentBatches)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("REVIEWKIT_REVIEWS_PER_BATCH", "not-a-number")
	cfg := Load()
	if cfg.ReviewsPerBatch != 20 {
		t.Errorf("garbage env value should fall back to default, got %d", cfg.ReviewsPerBatch)
	}

	t.Setenv("REVIEWKIT_REVIEWS_PER_BATCH", "-5")
	cfg = Load()
	if cfg.ReviewsPerBatch != 20 {
		t.Errorf("negative env value should fall back to default, got %d", cfg.ReviewsPerBatch)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
surrealdb:
  namespace: staging
llm:
  provider: ollama
  model: llama3
classify:
  reviews_per_batch: 10
log_level: debug
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.SurrealDBNamespace != "staging" {
		t.Errorf("namespace = %q, want staging", cfg.SurrealDBNamespace)
	}
	if cfg.LLMProvider != "ollama" || cfg.LLMModel != "llama3" {
		t.Errorf("llm = %q/%q, want ollama/llama3", cfg.LLMProvider, cfg.LLMModel)
	}
	if cfg.ReviewsPerBatch != 10 {
		t.Errorf("reviews_per_batch = %d, want 10", cfg.ReviewsPerBatch)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.LogLevel)
	}
	// Untouched fields keep env defaults
	if cfg.MaxAttempts != 3 {
		t.Errorf("max attempts should keep default 3, got %d", cfg.MaxAttempts)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
