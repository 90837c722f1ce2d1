package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/version"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Pinger checks that a backing dependency is reachable.
type Pinger interface {
	// Name identifies the dependency in the readiness report.
	Name() string
	// Ping returns nil when the dependency is healthy.
	Ping(ctx context.Context) error
}

// MultiPinger runs a set of pingers in order and returns per-check results.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger groups pingers for a combined readiness check.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// checkResult is the outcome of one dependency probe.
type checkResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Check probes every dependency, each under its own timeout, and reports
// overall readiness plus per-check detail.
func (m *MultiPinger) Check(ctx context.Context) (bool, []checkResult) {
	ready := true
	results := make([]checkResult, 0, len(m.pingers))
	for _, p := range m.pingers {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Ping(pctx)
		cancel()
		res := checkResult{Name: p.Name(), OK: err == nil}
		if err != nil {
			ready = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return ready, results
}

// healthResponse is the body for GET /api/health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// readyResponse is the body for GET /api/ready.
type readyResponse struct {
	Ready  bool          `json:"ready"`
	Checks []checkResult `json:"checks"`
}

// handleHealth reports liveness. It always succeeds while the process is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Version})
}

// handleReady probes every configured dependency and reports 503 if any
// probe fails. With no pingers configured it degrades to a liveness check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	mp := NewMultiPinger(s.pingers...)
	ready, checks := mp.Check(r.Context())

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
		for _, c := range checks {
			if !c.OK {
				logging.FromContext(r.Context()).Warn("readiness probe failed",
					slog.String("check", c.Name),
					slog.String("error", c.Error))
			}
		}
	}
	s.writeJSON(w, status, readyResponse{Ready: ready, Checks: checks})
}
