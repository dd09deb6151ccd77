package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/govcore/internal/api"
	"github.com/tutu-network/govcore/internal/app"
	"github.com/tutu-network/govcore/internal/daemon"
	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/bandit"
	"github.com/tutu-network/govcore/internal/infra/blobstore/memstore"
	"github.com/tutu-network/govcore/internal/infra/blobstore/sqlstore"
	"github.com/tutu-network/govcore/internal/infra/convergence"
	"github.com/tutu-network/govcore/internal/infra/feedback"
	"github.com/tutu-network/govcore/internal/infra/meta"
	"github.com/tutu-network/govcore/internal/infra/resourceprobe"
	"github.com/tutu-network/govcore/internal/infra/scheduler"
	"github.com/tutu-network/govcore/internal/infra/tuner"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governance loop",
	Long: `Start the governance loop and, when enabled in the config, the
HTTP status/control server. Runs until interrupted; component state is
flushed to the configured store on shutdown.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath(cmd))
	if err != nil {
		return err
	}

	orch, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		server := api.NewServer(orch)
		if cfg.Server.Metrics {
			server.EnableMetrics()
		}
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
		go func() {
			log.Printf("governd: http server listening on %s", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("governd: http server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	log.Printf("governd: starting governance loop (mode %s, storage %s)", cfg.Tuner.Mode, cfg.Storage.Backend)
	err = orch.Run(ctx)
	orch.Flush()
	if err == context.Canceled {
		log.Printf("governd: stopped")
		return nil
	}
	return err
}

// buildOrchestrator wires every component from the loaded config. The
// returned cleanup closes the store.
func buildOrchestrator(cfg daemon.Config) (*app.Orchestrator, func(), error) {
	var store domain.BlobStore
	cleanup := func() {}
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := sqlstore.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		store = s
		cleanup = func() { s.Close() }
	default:
		store = memstore.New()
	}

	halfLife, err := cfg.FeedbackHalfLife()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	clock := domain.NewSystemClock()
	rng := domain.NewMathRng()
	probe := resourceprobe.New(domain.ResourceSnapshot{})

	agg := feedback.New(feedback.Config{HalfLife: halfLife}, store)
	tn := tuner.New(tuner.Config{Mode: tunerMode(cfg.Tuner.Mode)}, rng, store)
	bd := bandit.New(bandit.Config{
		MinPullsForContext: cfg.Bandit.MinPullsForContext,
		PersistEvery:       cfg.Bandit.PersistEvery,
	}, rng, store, tn)
	det := convergence.New(convergence.Config{
		VarianceWindow:       cfg.Convergence.VarianceWindow,
		TrendWindow:          cfg.Convergence.TrendWindow,
		MinSamples:           cfg.Convergence.MinSamples,
		OscillationThreshold: cfg.Convergence.OscillationThreshold,
	}, tn, store)
	sched := scheduler.New(scheduler.Config{
		MinSeconds:          cfg.Scheduler.MinIntervalSeconds,
		MaxSeconds:          cfg.Scheduler.MaxIntervalSeconds,
		BaselineSeconds:     cfg.Scheduler.BaselineIntervalSeconds,
		PatternLearningRate: cfg.Scheduler.PatternLearningRate,
	}, store)
	ctrl := meta.New(meta.Config{
		LearningRate: meta.LearningRateConfig{
			Current:            cfg.Meta.LearningRate,
			Min:                cfg.Meta.LearningRateMin,
			Max:                cfg.Meta.LearningRateMax,
			Decay:              cfg.Meta.LearningRateDecay,
			Growth:             cfg.Meta.LearningRateGrowth,
			StabilityThreshold: cfg.Meta.StabilityThreshold,
		},
		Exploration: cfg.Meta.Exploration,
	}, rng, store, det)

	orch := app.New(app.Config{
		WarmupCycles:           cfg.Orchestrator.WarmupCycles,
		EvaluateEvery:          cfg.Orchestrator.EvaluateEvery,
		MaxConsecutiveFailures: cfg.Orchestrator.MaxConsecutiveFailures,
	}, clock, probe, agg, tn, bd, det, sched, ctrl, app.Events{})
	return orch, cleanup, nil
}

func tunerMode(s string) domain.TunerMode {
	switch s {
	case "aggressive":
		return domain.ModeAggressive
	case "conservative":
		return domain.ModeConservative
	case "convergent":
		return domain.ModeConvergent
	default:
		return domain.ModeBalanced
	}
}
