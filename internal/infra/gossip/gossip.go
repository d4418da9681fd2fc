// Package gossip implements the flood-fill Gossip Engine (C4, §4.4):
// bounded self-origination on a ticker, a FIFO-evicted Message Log for
// exact dedup, and forward-to-all-but-sender propagation. The ticker
// loop and mutex-guarded map style are grounded on the teacher's SWIM
// probe cycle (formerly internal/infra/gossip/swim.go: Start's
// time.NewTicker(s.config.Interval) loop, randomMember/randomMembers
// selection over a live member map).
package gossip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/meshlink/overlay/internal/codec"
	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/infra/observability"
	"github.com/meshlink/overlay/internal/infra/topology"
	"github.com/meshlink/overlay/internal/logging"
)

// Config controls the origination and dedup parameters of §4.4.
type Config struct {
	Interval      time.Duration // how often this node originates a message
	MaxOriginated int           // M: cap on self-originated messages (0 = unlimited)
	LogCap        int           // bound on the Message Log's FIFO eviction
}

// messageLog is the bounded, exact-membership dedup cache keyed by
// SHA-256 of the gossip payload (§4.4: "if h is already in ML, drop").
// A Bloom filter was considered and rejected for this role — see the
// accompanying design notes — because a false positive here would
// silently drop a genuinely new message, violating eventual delivery.
type messageLog struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]struct{}
}

func newMessageLog(cap int) *messageLog {
	return &messageLog{cap: cap, seen: make(map[string]struct{})}
}

// seenOrAdd reports whether h was already present, adding it if not.
func (ml *messageLog) seenOrAdd(h string) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if _, ok := ml.seen[h]; ok {
		return true
	}
	ml.seen[h] = struct{}{}
	ml.order = append(ml.order, h)
	if ml.cap > 0 && len(ml.order) > ml.cap {
		oldest := ml.order[0]
		ml.order = ml.order[1:]
		delete(ml.seen, oldest)
	}
	return false
}

func (ml *messageLog) size() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return len(ml.order)
}

func hashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Engine runs the origination ticker and exposes the forwarding entry
// point the connection read loops call for every inbound GOSSIP frame.
type Engine struct {
	cfg   Config
	self  domain.PeerID
	table *topology.Table
	log   *logging.Logger

	ml *messageLog

	mu    sync.Mutex
	seqNo uint64
	sent  int
}

// New creates a gossip Engine bound to a neighbor table.
func New(cfg Config, self domain.PeerID, table *topology.Table, log *logging.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		self:  self,
		table: table,
		log:   log,
		ml:    newMessageLog(cfg.LogCap),
	}
}

// Run drives the self-origination ticker (§4.4 step 1) until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.originate()
		}
	}
}

// originate emits one self-originated GOSSIP message to every neighbor,
// honoring the M cap on total originated messages (§4.4 "Edge cases").
func (e *Engine) originate() {
	e.mu.Lock()
	if e.cfg.MaxOriginated > 0 && e.sent >= e.cfg.MaxOriginated {
		e.mu.Unlock()
		return
	}
	e.seqNo++
	seq := e.seqNo
	e.sent++
	e.mu.Unlock()

	now := time.Now()
	payload := domain.GossipPayload(now, e.self, seq)
	h := hashPayload(payload)
	e.ml.seenOrAdd(h)
	observability.GossipOriginated.Inc()
	observability.MessageLogSize.Set(float64(e.ml.size()))

	msg := domain.Message{
		Kind:       domain.KindGossip,
		Originator: e.self,
		SeqNo:      seq,
		Timestamp:  now.Unix(),
		Payload:    payload,
	}
	e.flood(msg, domain.PeerID{})
}

// HandleGossip applies the forwarding rule of §4.4 step 2 to an inbound
// GOSSIP message received from sender: drop if its hash is already in
// the Message Log, otherwise record it and forward to every neighbor
// except sender.
func (e *Engine) HandleGossip(msg domain.Message, sender domain.PeerID) {
	h := hashPayload(msg.Payload)
	if e.ml.seenOrAdd(h) {
		observability.GossipDuplicatesDropped.Inc()
		return
	}
	observability.MessageLogSize.Set(float64(e.ml.size()))
	e.flood(msg, sender)
}

// flood writes msg to every neighbor in the table except exclude. Write
// failures are logged and otherwise ignored — a dead neighbor socket is
// the Liveness Detector's concern, not the gossip engine's.
func (e *Engine) flood(msg domain.Message, exclude domain.PeerID) {
	frame := codec.Encode(msg)
	for _, n := range e.table.Except(exclude) {
		if err := n.Conn.WriteFrame(frame); err != nil {
			if e.log != nil {
				e.log.Printf("forward to %s failed: %v", n.ID, err)
			}
			continue
		}
		observability.GossipForwarded.Inc()
	}
}

// LogSize reports the current Message Log occupancy, used by the /status
// endpoint (§12 supplemented feature).
func (e *Engine) LogSize() int {
	return e.ml.size()
}
