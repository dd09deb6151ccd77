package api

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tutu-network/govcore/internal/app"
	"github.com/tutu-network/govcore/internal/domain"
	"github.com/tutu-network/govcore/internal/infra/bandit"
	"github.com/tutu-network/govcore/internal/infra/blobstore/memstore"
	"github.com/tutu-network/govcore/internal/infra/convergence"
	"github.com/tutu-network/govcore/internal/infra/feedback"
	"github.com/tutu-network/govcore/internal/infra/meta"
	"github.com/tutu-network/govcore/internal/infra/scheduler"
	"github.com/tutu-network/govcore/internal/infra/tuner"
)

type testRng struct{}

func (testRng) Uniform() float64 { return rand.Float64() }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memstore.New()
	rng := testRng{}
	now := func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }

	agg := feedback.New(feedback.Config{HalfLife: 7 * 24 * time.Hour, Now: now}, store)
	tn := tuner.New(tuner.Config{Mode: domain.ModeBalanced, Now: now}, rng, store)
	bd := bandit.New(bandit.DefaultConfig(), rng, store, tn)
	det := convergence.New(convergence.DefaultConfig(), tn, store)
	sched := scheduler.New(scheduler.DefaultConfig(), store)
	ctrl := meta.New(meta.DefaultConfig(), rng, store, det)

	orch := app.New(app.DefaultConfig(), domain.NewSystemClock(), nil,
		agg, tn, bd, det, sched, ctrl, app.Events{})
	return NewServer(orch)
}

func getJSON(t *testing.T, h http.Handler, path string, wantStatus int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("GET %s = %d, want %d (body %s)", path, rec.Code, wantStatus, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("GET %s returned invalid JSON: %v", path, err)
	}
	return out
}

func TestServer_HealthAndStatus(t *testing.T) {
	h := newTestServer(t).Handler()

	got := getJSON(t, h, "/health", http.StatusOK)
	if got["status"] != "ok" {
		t.Fatalf("health status = %v", got["status"])
	}

	got = getJSON(t, h, "/api/status", http.StatusOK)
	if got["state"] != "stopped" {
		t.Fatalf("fresh orchestrator state = %v, want stopped", got["state"])
	}
}

func TestServer_GovernanceState(t *testing.T) {
	h := newTestServer(t).Handler()
	got := getJSON(t, h, "/api/governance/state", http.StatusOK)
	if got["strategy"] != "thompson" {
		t.Fatalf("default strategy = %v, want thompson", got["strategy"])
	}
	if got["last_decision"] != "continue" {
		t.Fatalf("fresh last decision = %v, want continue", got["last_decision"])
	}
}

func TestServer_TunerParamLookup(t *testing.T) {
	h := newTestServer(t).Handler()

	got := getJSON(t, h, "/api/governance/tuner/exploration_rate", http.StatusOK)
	if got["value"].(float64) != 0.1 {
		t.Fatalf("exploration_rate default = %v, want 0.1", got["value"])
	}
	if got["converged"].(bool) {
		t.Fatal("a fresh hyperparameter must not be converged")
	}

	getJSON(t, h, "/api/governance/tuner/no_such_knob", http.StatusNotFound)
}

func TestServer_ConvergenceEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	got := getJSON(t, h, "/api/governance/convergence", http.StatusOK)
	if got["state"] != "unknown" {
		t.Fatalf("empty detector state = %v, want unknown", got["state"])
	}
}

func TestServer_MetricsMountIsConditional(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should 404 before EnableMetrics, got %d", rec.Code)
	}

	s.EnableMetrics()
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics should serve after EnableMetrics, got %d", rec.Code)
	}
}
