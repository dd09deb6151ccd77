// Package daemon holds the governd daemon configuration: one TOML
// section per governance component plus storage and server settings.
package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full governd configuration.
type Config struct {
	Tuner        TunerConfig        `toml:"tuner"`
	Bandit       BanditConfig       `toml:"bandit"`
	Feedback     FeedbackConfig     `toml:"feedback"`
	Convergence  ConvergenceConfig  `toml:"convergence"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	Meta         MetaConfig         `toml:"meta"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Storage      StorageConfig      `toml:"storage"`
	Server       ServerConfig       `toml:"server"`
}

// TunerConfig configures the hyperparameter tuner.
type TunerConfig struct {
	// Mode is one of aggressive, balanced, conservative, convergent.
	Mode string `toml:"mode"`
}

// BanditConfig configures the contextual bandit.
type BanditConfig struct {
	MinPullsForContext int64 `toml:"min_pulls_for_context"`
	PersistEvery       int64 `toml:"persist_every"`
}

// FeedbackConfig configures the feedback aggregator.
type FeedbackConfig struct {
	// HalfLife is the time-decay half-life as a duration string, e.g.
	// "168h" for one week.
	HalfLife string `toml:"half_life"`
}

// ConvergenceConfig configures the convergence detector.
type ConvergenceConfig struct {
	VarianceWindow       int `toml:"variance_window"`
	TrendWindow          int `toml:"trend_window"`
	MinSamples           int `toml:"min_samples"`
	OscillationThreshold int `toml:"oscillation_threshold"`
}

// SchedulerConfig configures the adaptive interval scheduler.
type SchedulerConfig struct {
	MinIntervalSeconds      float64 `toml:"min_interval_seconds"`
	MaxIntervalSeconds      float64 `toml:"max_interval_seconds"`
	BaselineIntervalSeconds float64 `toml:"baseline_interval_seconds"`
	PatternLearningRate     float64 `toml:"pattern_learning_rate"`
}

// MetaConfig configures the meta-learning controller.
type MetaConfig struct {
	LearningRate       float64 `toml:"learning_rate"`
	LearningRateMin    float64 `toml:"learning_rate_min"`
	LearningRateMax    float64 `toml:"learning_rate_max"`
	LearningRateDecay  float64 `toml:"learning_rate_decay"`
	LearningRateGrowth float64 `toml:"learning_rate_growth"`
	StabilityThreshold int     `toml:"stability_threshold"`
	Exploration        float64 `toml:"exploration"`
}

// OrchestratorConfig configures the cycle driver.
type OrchestratorConfig struct {
	WarmupCycles           int `toml:"warmup_cycles"`
	EvaluateEvery          int `toml:"evaluate_every"`
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `toml:"backend"`
	// Path is the sqlite database path (ignored for memory).
	Path string `toml:"path"`
}

// ServerConfig configures the optional HTTP surface.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Tuner: TunerConfig{Mode: "balanced"},
		Bandit: BanditConfig{
			MinPullsForContext: 5,
			PersistEvery:       50,
		},
		Feedback: FeedbackConfig{HalfLife: "168h"},
		Convergence: ConvergenceConfig{
			VarianceWindow:       50,
			TrendWindow:          20,
			MinSamples:           20,
			OscillationThreshold: 5,
		},
		Scheduler: SchedulerConfig{
			MinIntervalSeconds:      60,
			MaxIntervalSeconds:      900,
			BaselineIntervalSeconds: 300,
			PatternLearningRate:     0.1,
		},
		Meta: MetaConfig{
			LearningRate:       0.1,
			LearningRateMin:    0.001,
			LearningRateMax:    0.5,
			LearningRateDecay:  0.95,
			LearningRateGrowth: 1.1,
			StabilityThreshold: 10,
			Exploration:        0.3,
		},
		Orchestrator: OrchestratorConfig{
			WarmupCycles:           5,
			EvaluateEvery:          1,
			MaxConsecutiveFailures: 3,
		},
		Storage: StorageConfig{Backend: "memory"},
		Server: ServerConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8090,
			Metrics: true,
		},
	}
}

// Load reads a TOML config file, layering it over the defaults. A
// missing path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot run with.
func (c Config) Validate() error {
	switch c.Tuner.Mode {
	case "aggressive", "balanced", "conservative", "convergent":
	default:
		return fmt.Errorf("tuner.mode %q is not one of aggressive, balanced, conservative, convergent", c.Tuner.Mode)
	}
	if _, err := c.FeedbackHalfLife(); err != nil {
		return err
	}
	if c.Scheduler.MinIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.min_interval_seconds must be positive, got %v", c.Scheduler.MinIntervalSeconds)
	}
	if c.Scheduler.MaxIntervalSeconds < c.Scheduler.MinIntervalSeconds {
		return fmt.Errorf("scheduler.max_interval_seconds (%v) must be >= min (%v)",
			c.Scheduler.MaxIntervalSeconds, c.Scheduler.MinIntervalSeconds)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, sqlite", c.Storage.Backend)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the sqlite backend")
	}
	return nil
}

// FeedbackHalfLife parses the configured feedback half-life.
func (c Config) FeedbackHalfLife() (time.Duration, error) {
	if c.Feedback.HalfLife == "" {
		return 168 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Feedback.HalfLife)
	if err != nil {
		return 0, fmt.Errorf("feedback.half_life %q: %w", c.Feedback.HalfLife, err)
	}
	return d, nil
}
