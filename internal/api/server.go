// Package api provides the optional HTTP surface over a running
// governance core: liveness, governance state, checkpoint inspection,
// per-hyperparameter introspection, and Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/govcore/internal/app"
	"github.com/tutu-network/govcore/internal/domain"
)

// Server is the governance core's HTTP API server.
type Server struct {
	orch           *app.Orchestrator
	metricsEnabled bool
}

// NewServer creates a new API server over a wired orchestrator.
func NewServer(orch *app.Orchestrator) *Server {
	return &Server{orch: orch}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "govcore is running",
			"state":  s.orch.State().String(),
		})
	})

	r.Route("/api/governance", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/checkpoints", s.handleCheckpoints)
		r.Post("/checkpoints/{id}/rollback", s.handleRollback)
		r.Get("/tuner/{id}", s.handleTunerParam)
		r.Get("/convergence", s.handleConvergence)
		r.Get("/arms", s.handleArms)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	decision := s.orch.LastDecision()
	ctrl := s.orch.Controller().State()
	writeJSON(w, http.StatusOK, map[string]any{
		"lifecycle":       s.orch.State().String(),
		"cycle_count":     s.orch.CycleCount(),
		"next_run_at":     s.orch.NextRunAt(),
		"last_decision":   decision.Action.String(),
		"decision_reason": decision.Reason,
		"strategy":        ctrl.Strategy.String(),
		"learning_rate":   ctrl.LearningRate,
		"exploration":     ctrl.Exploration,
		"convergence":     s.orch.Tuner().SystemConvergence(),
	})
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	det := s.orch.Detector()
	resp := map[string]any{
		"checkpoints": det.Checkpoints(),
	}
	if best, ok := det.FindBestCheckpoint(); ok {
		resp["best"] = best
	}
	if last, ok := det.FindLastGoodCheckpoint(0.5); ok {
		resp["last_good"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.orch.RollbackTo(id) {
		writeError(w, http.StatusNotFound, "unknown checkpoint id: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rolled_back_to": id})
}

func (s *Server) handleTunerParam(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	id, ok := domain.HyperparameterIdFromString(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown hyperparameter id: "+name)
		return
	}
	tn := s.orch.Tuner()
	spec := domain.HyperparameterSpecs[id]
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         name,
		"value":      tn.Value(id),
		"confidence": tn.Confidence(id),
		"converged":  tn.IsConverged(id),
		"default":    spec.Default,
		"lo":         spec.Lo,
		"hi":         spec.Hi,
	})
}

func (s *Server) handleConvergence(w http.ResponseWriter, r *http.Request) {
	analysis := s.orch.Detector().Analyze()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           analysis.State.String(),
		"confidence":      analysis.Confidence,
		"variance":        analysis.Variance,
		"trend":           analysis.Trend,
		"oscillations":    analysis.Oscillations,
		"since_converged": analysis.SinceConverged,
		"recommendation":  analysis.Recommendation,
	})
}

func (s *Server) handleArms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"arms": s.orch.Bandit().GlobalStats(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
