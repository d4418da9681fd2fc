// Package liveness implements the peer-side Liveness Detector (C5, §4.5):
// a per-neighbor ping loop scheduled off a deadline queue, a local
// suspicion-corroboration quorum before any DEAD verdict, and escalation
// of confirmed-dead neighbors to every seed. The two-stage
// timeout-then-quorum scheme and the ticker-driven scheduling loop are
// grounded on the teacher's SWIM probe cycle (formerly
// internal/infra/gossip/swim.go: probeCycle's direct-PING/PING-REQ/
// markSuspect sequence), adapted from a single random-member-per-tick
// probe into one independently scheduled deadline per neighbor.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshlink/overlay/internal/codec"
	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/infra/dsa"
	"github.com/meshlink/overlay/internal/infra/observability"
	"github.com/meshlink/overlay/internal/infra/topology"
	"github.com/meshlink/overlay/internal/logging"
	"github.com/meshlink/overlay/internal/netio"
)

// Config mirrors config.LivenessTuning.
type Config struct {
	PingInterval  time.Duration // T_ping (13s in the reference)
	MissThreshold int           // consecutive misses before SUSPECT (3 in the reference)
	DialTimeout   time.Duration // bound on any single dial/read during a probe
}

type corroQuery struct {
	total            int
	unreachableVotes int
}

// Engine tracks missed-ping counts and in-flight corroboration quorums
// for every current neighbor.
type Engine struct {
	cfg   Config
	self  domain.PeerID
	table *topology.Table
	seeds []domain.SeedID
	log   *logging.Logger

	dq *dsa.DeadlineQueue

	mu            sync.Mutex
	missed        map[string]int
	pendingPing   map[string]string // neighbor key -> outstanding nonce
	corroboration map[string]*corroQuery
}

// New creates a liveness Engine for one node's neighbor table.
func New(cfg Config, self domain.PeerID, table *topology.Table, seeds []domain.SeedID, log *logging.Logger) *Engine {
	return &Engine{
		cfg:           cfg,
		self:          self,
		table:         table,
		seeds:         seeds,
		log:           log,
		dq:            dsa.NewDeadlineQueue(),
		missed:        make(map[string]int),
		pendingPing:   make(map[string]string),
		corroboration: make(map[string]*corroQuery),
	}
}

// RegisterNeighbor schedules immediate pinging for a newly attached
// neighbor. Call this whenever the Table gains an entry.
func (e *Engine) RegisterNeighbor(id domain.PeerID) {
	e.dq.Push(dsa.DeadlineItem{Key: id.String(), Deadline: time.Now()})
}

// UnregisterNeighbor drops all liveness bookkeeping for id. Call this
// whenever the Table loses an entry through a path other than this
// engine's own DEAD transition.
func (e *Engine) UnregisterNeighbor(id domain.PeerID) {
	key := id.String()
	e.dq.Remove(key)
	e.mu.Lock()
	delete(e.missed, key)
	delete(e.pendingPing, key)
	delete(e.corroboration, key)
	e.mu.Unlock()
}

// Run polls the deadline queue until ctx is cancelled, firing a ping for
// every neighbor whose deadline has passed.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	now := time.Now()
	for {
		item, ok := e.dq.Peek()
		if !ok || item.Deadline.After(now) {
			return
		}
		e.dq.Pop()
		e.pingNeighbor(item.Key)
		e.dq.Push(dsa.DeadlineItem{Key: item.Key, Deadline: now.Add(e.cfg.PingInterval)})
	}
}

func (e *Engine) pingNeighbor(key string) {
	id, err := domain.ParsePeerID(key)
	if err != nil {
		return
	}
	n, ok := e.table.Get(id)
	if !ok {
		e.dq.Remove(key)
		return
	}

	nonce := uuid.NewString()
	e.mu.Lock()
	e.pendingPing[key] = nonce
	e.mu.Unlock()

	if err := n.Conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindPing, Nonce: nonce})); err != nil {
		e.recordMiss(id)
		return
	}
	go e.awaitPong(id, nonce)
}

func (e *Engine) awaitPong(id domain.PeerID, nonce string) {
	time.Sleep(e.cfg.PingInterval)
	key := id.String()

	e.mu.Lock()
	cur, stillPending := e.pendingPing[key]
	if stillPending && cur == nonce {
		delete(e.pendingPing, key)
		e.mu.Unlock()
		e.recordMiss(id)
		return
	}
	e.mu.Unlock()
}

// HandlePong clears a matched pending ping and resets the miss counter.
// The connection read loop calls this for every inbound PONG frame.
func (e *Engine) HandlePong(from domain.PeerID, nonce string) {
	key := from.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.pendingPing[key]; ok && cur == nonce {
		delete(e.pendingPing, key)
		e.missed[key] = 0
	}
}

func (e *Engine) recordMiss(id domain.PeerID) {
	observability.PingsMissed.Inc()
	key := id.String()

	e.mu.Lock()
	e.missed[key]++
	n := e.missed[key]
	e.mu.Unlock()

	if n >= e.cfg.MissThreshold {
		e.beginSuspect(id)
	}
}

// beginSuspect transitions a neighbor to SUSPECT and starts the local
// corroboration quorum of §4.5, traced end-to-end as a single span since
// the verdict only lands after the quorum window elapses on another
// goroutine.
func (e *Engine) beginSuspect(target domain.PeerID) {
	e.table.SetState(target, domain.Suspect)
	observability.SuspectTransitions.Inc()
	span := observability.Trace.StartSpan(context.Background(), "liveness.corroboration")

	others := e.table.Except(target)
	if len(others) == 0 {
		// No other neighbor to corroborate with; trust the direct timeout.
		observability.Trace.EndSpan(span, nil)
		e.resolveSuspect(target, true)
		return
	}

	key := target.String()
	e.mu.Lock()
	e.corroboration[key] = &corroQuery{total: len(others)}
	e.mu.Unlock()

	frame := codec.Encode(domain.Message{Kind: domain.KindCandidateQuery, DeadPeer: target})
	for _, n := range others {
		n.Conn.WriteFrame(frame)
	}

	go func() {
		time.Sleep(e.cfg.PingInterval)
		e.mu.Lock()
		cq, ok := e.corroboration[key]
		if !ok {
			e.mu.Unlock()
			observability.Trace.EndSpan(span, nil)
			return
		}
		delete(e.corroboration, key)
		unreachable, total := cq.unreachableVotes, cq.total
		e.mu.Unlock()

		observability.Trace.EndSpan(span, nil)
		majority := total/2 + 1
		e.resolveSuspect(target, unreachable >= majority)
	}()
}

// HandleCandidateQuery answers a corroboration request about target with
// an immediate direct test ping (§4.5: "an immediate test ping").
func (e *Engine) HandleCandidateQuery(target domain.PeerID) domain.Message {
	return domain.Message{Kind: domain.KindCandidateReply, DeadPeer: target, Reachable: e.testPing(target)}
}

func (e *Engine) testPing(target domain.PeerID) bool {
	conn, err := netio.Dial(target.String(), e.cfg.DialTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	nonce := uuid.NewString()
	if err := conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindPing, Nonce: nonce})); err != nil {
		return false
	}
	conn.SetReadDeadline(time.Now().Add(e.cfg.DialTimeout))
	line, err := conn.ReadFrame()
	if err != nil {
		return false
	}
	msg, err := codec.Decode(line)
	return err == nil && msg.Kind == domain.KindPong && msg.Nonce == nonce
}

// HandleCandidateReply records one neighbor's vote in an in-flight
// corroboration quorum for target.
func (e *Engine) HandleCandidateReply(target domain.PeerID, reachable bool) {
	key := target.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	cq, ok := e.corroboration[key]
	if !ok {
		return
	}
	if !reachable {
		cq.unreachableVotes++
	}
}

// resolveSuspect applies the corroboration verdict: back to HEALTHY with
// counters reset, or DEAD with closure, removal, and escalation to every
// seed (§4.5 "Local corroboration").
func (e *Engine) resolveSuspect(target domain.PeerID, isDead bool) {
	key := target.String()
	e.mu.Lock()
	delete(e.missed, key)
	e.mu.Unlock()

	if !isDead {
		e.table.SetState(target, domain.Healthy)
		return
	}

	e.table.SetState(target, domain.Dead)
	e.dq.Remove(key)
	e.table.Remove(target)
	observability.DeadNodeEscalations.Inc()

	frame := codec.Encode(domain.Message{
		Kind:         domain.KindDeadNode,
		DeadPeer:     target,
		ReporterPeer: e.self,
		Timestamp:    time.Now().Unix(),
	})
	for _, s := range e.seeds {
		go e.escalate(s, frame)
	}
}

func (e *Engine) escalate(seed domain.SeedID, frame string) {
	conn, err := netio.Dial(seed.String(), e.cfg.DialTimeout)
	if err != nil {
		if e.log != nil {
			e.log.Printf("escalate to seed %s failed: %v", seed, err)
		}
		return
	}
	defer conn.Close()
	if err := conn.WriteFrame(frame); err != nil && e.log != nil {
		e.log.Printf("escalate to seed %s failed: %v", seed, err)
	}
}

// HandlePing answers an inbound PING with a matching PONG. A free
// function since it needs no engine state: any node, seed or peer,
// answers PING the same way.
func HandlePing(nonce string) domain.Message {
	return domain.Message{Kind: domain.KindPong, Nonce: nonce}
}
