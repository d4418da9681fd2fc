// Package observability provides the Prometheus metrics and lightweight
// tracing used across the overlay node, in the teacher's promauto-vars
// style (internal/infra/observability/observability.go), re-pointed at
// this module's own event surface (consensus, gossip, liveness) instead
// of the teacher's scheduler/region/circuit-breaker metrics.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Consensus Metrics (C2) ─────────────────────────────────────────────────

var (
	ConsensusVotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "consensus",
		Name:      "votes_cast_total",
		Help:      "Total ADD votes recorded by this seed: its own vote on each REGISTER plus every VOTE_ADD it receives.",
	}, []string{"kind"})

	ConsensusCommits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "consensus",
		Name:      "commits_total",
		Help:      "Total ADD proposals committed to live_peers.",
	})

	ConsensusRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "consensus",
		Name:      "removals_total",
		Help:      "Total peers removed from live_peers via the REMOVE protocol.",
	})

	LivePeersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlay",
		Subsystem: "consensus",
		Name:      "live_peers",
		Help:      "Current size of live_peers on this seed.",
	})
)

// ─── Topology Metrics (C3) ──────────────────────────────────────────────────

var (
	OutboundNeighbors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlay",
		Subsystem: "topology",
		Name:      "outbound_neighbors",
		Help:      "Current number of outbound (attachment-capped) neighbors.",
	})

	InboundNeighbors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlay",
		Subsystem: "topology",
		Name:      "inbound_neighbors",
		Help:      "Current number of inbound (uncapped) neighbors.",
	})
)

// ─── Gossip Metrics (C4) ────────────────────────────────────────────────────

var (
	GossipOriginated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "gossip",
		Name:      "originated_total",
		Help:      "Total GOSSIP messages originated by this peer.",
	})

	GossipForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "gossip",
		Name:      "forwarded_total",
		Help:      "Total per-neighbor GOSSIP forwards.",
	})

	GossipDuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "gossip",
		Name:      "duplicates_dropped_total",
		Help:      "Total GOSSIP frames dropped as already-seen.",
	})

	MessageLogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlay",
		Subsystem: "gossip",
		Name:      "message_log_size",
		Help:      "Current number of entries in the Message Log.",
	})
)

// ─── Liveness Metrics (C5) ──────────────────────────────────────────────────

var (
	PingsMissed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "liveness",
		Name:      "pings_missed_total",
		Help:      "Total missed PING responses across all neighbors.",
	})

	SuspectTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "liveness",
		Name:      "suspect_transitions_total",
		Help:      "Total HEALTHY -> SUSPECT transitions.",
	})

	DeadNodeEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Subsystem: "liveness",
		Name:      "dead_node_escalations_total",
		Help:      "Total DEAD_NODE reports sent to seeds.",
	})
)

// ─── Frame / codec metrics ──────────────────────────────────────────────────

var MalformedFramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "codec",
	Name:      "malformed_frames_dropped_total",
	Help:      "Total frames dropped by the codec, by reason.",
}, []string{"reason"})

// ─── Lightweight Tracer ─────────────────────────────────────────────────────
// Spans cover the multi-hop operations worth correlating in logs and on
// /status: a consensus round (node/seed.go's handleRegister/handleVoteAdd/
// handleDeadNode), a bootstrap pass (node/peer.go's bootstrap), and a
// corroboration quorum (infra/liveness's beginSuspect). No external OTel
// SDK dependency, matching the teacher's own in-memory ring-buffer tracer.

// Span represents a unit of traced work.
type Span struct {
	TraceID   string
	SpanID    string
	Operation string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Err       error
}

// Tracer stores recent spans in a bounded ring buffer for inspection via
// the /status endpoint.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
}

// NewTracer creates a tracer retaining up to maxSpans recent spans.
func NewTracer(maxSpans int) *Tracer {
	if maxSpans <= 0 {
		maxSpans = 1000
	}
	return &Tracer{maxSpans: maxSpans}
}

// Trace is the process-wide tracer every node wiring layer and protocol
// engine records spans to.
var Trace = NewTracer(256)

// StartSpan begins a span; the trace ID is read from ctx if present,
// otherwise a fresh one is minted.
func (t *Tracer) StartSpan(ctx context.Context, operation string) *Span {
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		Operation: operation,
		StartTime: time.Now(),
	}
}

// EndSpan completes and records a span.
func (t *Tracer) EndSpan(span *Span, err error) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Err = err

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns the most recent spans, up to limit (0 = all).
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

type contextKey string

const traceIDKey contextKey = "overlay-trace-id"

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// NewTraceID mints a fresh trace ID using a UUIDv4.
func NewTraceID() string { return uuid.NewString() }

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return NewTraceID()
}
