package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tuner.Mode != "balanced" {
		t.Errorf("Tuner.Mode = %q, want %q", cfg.Tuner.Mode, "balanced")
	}
	if cfg.Bandit.MinPullsForContext != 5 {
		t.Errorf("Bandit.MinPullsForContext = %d, want 5", cfg.Bandit.MinPullsForContext)
	}
	if cfg.Bandit.PersistEvery != 50 {
		t.Errorf("Bandit.PersistEvery = %d, want 50", cfg.Bandit.PersistEvery)
	}
	if cfg.Feedback.HalfLife != "168h" {
		t.Errorf("Feedback.HalfLife = %q, want %q", cfg.Feedback.HalfLife, "168h")
	}
	if cfg.Convergence.VarianceWindow != 50 || cfg.Convergence.TrendWindow != 20 {
		t.Errorf("Convergence windows = %d/%d, want 50/20",
			cfg.Convergence.VarianceWindow, cfg.Convergence.TrendWindow)
	}
	if cfg.Scheduler.MinIntervalSeconds != 60 || cfg.Scheduler.MaxIntervalSeconds != 900 {
		t.Errorf("Scheduler bounds = %v/%v, want 60/900",
			cfg.Scheduler.MinIntervalSeconds, cfg.Scheduler.MaxIntervalSeconds)
	}
	if cfg.Scheduler.BaselineIntervalSeconds != 300 {
		t.Errorf("Scheduler.BaselineIntervalSeconds = %v, want 300", cfg.Scheduler.BaselineIntervalSeconds)
	}
	if cfg.Meta.LearningRate != 0.1 || cfg.Meta.StabilityThreshold != 10 {
		t.Errorf("Meta learning rate config = %v/%d, want 0.1/10",
			cfg.Meta.LearningRate, cfg.Meta.StabilityThreshold)
	}
	if cfg.Orchestrator.MaxConsecutiveFailures != 3 {
		t.Errorf("Orchestrator.MaxConsecutiveFailures = %d, want 3", cfg.Orchestrator.MaxConsecutiveFailures)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "memory")
	}
	if cfg.Server.Enabled {
		t.Error("Server.Enabled should be false by default (opt-in)")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governd.toml")
	content := `
[tuner]
mode = "conservative"

[scheduler]
min_interval_seconds = 120

[storage]
backend = "sqlite"
path = "/tmp/govcore.db"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tuner.Mode != "conservative" {
		t.Errorf("Tuner.Mode = %q, want overridden %q", cfg.Tuner.Mode, "conservative")
	}
	if cfg.Scheduler.MinIntervalSeconds != 120 {
		t.Errorf("Scheduler.MinIntervalSeconds = %v, want 120", cfg.Scheduler.MinIntervalSeconds)
	}
	// Untouched sections keep their defaults.
	if cfg.Scheduler.MaxIntervalSeconds != 900 {
		t.Errorf("Scheduler.MaxIntervalSeconds = %v, want default 900", cfg.Scheduler.MaxIntervalSeconds)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/govcore.db" {
		t.Errorf("Storage = %+v, want sqlite backend", cfg.Storage)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load of absent file must not fail: %v", err)
	}
	if cfg.Tuner.Mode != "balanced" {
		t.Errorf("expected defaults, got mode %q", cfg.Tuner.Mode)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad tuner mode", func(c *Config) { c.Tuner.Mode = "yolo" }},
		{"bad half life", func(c *Config) { c.Feedback.HalfLife = "one week" }},
		{"inverted interval bounds", func(c *Config) { c.Scheduler.MaxIntervalSeconds = 10 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestFeedbackHalfLife(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.FeedbackHalfLife()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d != 168*time.Hour {
		t.Fatalf("half life = %v, want 168h", d)
	}

	cfg.Feedback.HalfLife = ""
	if d, _ := cfg.FeedbackHalfLife(); d != 168*time.Hour {
		t.Fatalf("empty half life should default to one week, got %v", d)
	}
}
