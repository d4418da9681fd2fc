// Package api exposes the overlay node's HTTP surface: health, status
// snapshots, and Prometheus metrics (§12: supplemented feature — the
// specification names no HTTP API, but every teacher-style service
// carries one). Middleware stack and Handler() wiring are grounded on
// the teacher's internal/api/server.go chi router.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/infra/observability"
)

// StatusProvider is implemented by the node wiring layer (seed or peer)
// to answer GET /status with a point-in-time snapshot.
type StatusProvider interface {
	Status() Status
}

// NeighborInfo summarizes one Peer Neighbor Table entry (§3) for status
// reporting: its last-known degree hint, whether it's an outbound
// (attachment-capped) or inbound entry, and its liveness state.
type NeighborInfo struct {
	ID         string `json:"id"`
	DegreeHint int    `json:"degree_hint"`
	Outbound   bool   `json:"outbound"`
	State      string `json:"state"`
}

// TraceSummary is one recorded span, surfaced on /status for correlating
// a consensus round, a bootstrap pass, or a corroboration quorum.
type TraceSummary struct {
	Operation string `json:"operation"`
	DurationMS int64 `json:"duration_ms"`
	Err        string `json:"err,omitempty"`
}

// RecentTraces returns the most recently completed spans, newest last, as
// TraceSummary values suitable for /status.
func RecentTraces(limit int) []TraceSummary {
	spans := observability.Trace.Spans(limit)
	out := make([]TraceSummary, len(spans))
	for i, s := range spans {
		out[i] = TraceSummary{Operation: s.Operation, DurationMS: s.Duration.Milliseconds()}
		if s.Err != nil {
			out[i].Err = s.Err.Error()
		}
	}
	return out
}

// AuditEvent is one row of the seed's audit trail, surfaced on /status as
// audit_history.
type AuditEvent struct {
	Kind       string `json:"kind"`
	Peer       string `json:"peer"`
	Reporter   string `json:"reporter"`
	VoteCount  int    `json:"vote_count"`
	RecordedAt string `json:"recorded_at"`
}

// Status is the JSON body of GET /status.
type Status struct {
	Role         string         `json:"role"` // "seed" or "peer"
	Self         string         `json:"self"`
	Neighbors    []NeighborInfo `json:"neighbors,omitempty"`  // peer role
	LivePeers    []string       `json:"live_peers,omitempty"` // seed role
	LogSize      int            `json:"message_log_size,omitempty"`
	Traces       []TraceSummary `json:"traces,omitempty"`
	AuditHistory []AuditEvent   `json:"audit_history,omitempty"` // seed role, when an audit db is configured
}

// Server is the overlay node's HTTP API server.
type Server struct {
	status         StatusProvider
	metricsEnabled bool
}

// NewServer creates an API server backed by a StatusProvider.
func NewServer(status StatusProvider) *Server {
	return &Server{status: status}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
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

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if s.status == nil {
			writeError(w, http.StatusServiceUnavailable, "status not available")
			return
		}
		writeJSON(w, http.StatusOK, s.status.Status())
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}

// PeerIDStrings renders a slice of PeerIDs as their wire-format strings,
// the shape Status's JSON fields use.
func PeerIDStrings(peers []domain.PeerID) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.String()
	}
	return out
}
