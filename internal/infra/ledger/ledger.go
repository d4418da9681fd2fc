// Package ledger implements the seed-side Membership Ledger and its ADD/
// REMOVE consensus protocols (§3, §4.2). It holds no socket state: callers
// wire Ledger's return values into the broadcasts and replies the wire
// protocol (§4.1) requires, the way the teacher's SWIM implementation
// (internal/infra/gossip/swim.go) separates membership-state mutation
// from the send/receive loop that drives it.
package ledger

import (
	"sync"

	"github.com/meshlink/overlay/internal/domain"
)

// Ledger is the authoritative, process-memory-only membership state of one
// seed (§1 Non-goals: not a durable datastore — restart reinitializes to
// empty, per §4.2 "Failure semantics").
type Ledger struct {
	mu sync.RWMutex

	self  domain.SeedID
	seeds []domain.SeedID // all seeds in the directory, including self

	livePeers     map[string]domain.PeerID          // peer key -> PeerID
	pendingAdd    map[string]map[string]struct{}     // peer key -> set of voting seed keys
	pendingRemove map[string]map[string]struct{}     // dead peer key -> set of reporter keys
}

// New creates a Ledger for a seed that knows the full seed directory
// (including itself).
func New(self domain.SeedID, seeds []domain.SeedID) *Ledger {
	return &Ledger{
		self:          self,
		seeds:         seeds,
		livePeers:     make(map[string]domain.PeerID),
		pendingAdd:    make(map[string]map[string]struct{}),
		pendingRemove: make(map[string]map[string]struct{}),
	}
}

// NumSeeds returns the size of the seed directory, the denominator for
// both ADD and REMOVE majority thresholds.
func (l *Ledger) NumSeeds() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seeds)
}

// Majority returns floor(n_seeds/2)+1.
func (l *Ledger) Majority() int {
	return l.NumSeeds()/2 + 1
}

// IsLive reports whether p is currently in live_peers.
func (l *Ledger) IsLive(p domain.PeerID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.livePeers[p.String()]
	return ok
}

// LivePeers returns a snapshot of live_peers, excluding exclude if present
// (used when replying PEER_LIST to the registering peer itself).
func (l *Ledger) LivePeers(exclude domain.PeerID) []domain.PeerID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.PeerID, 0, len(l.livePeers))
	excludeKey := exclude.String()
	for k, p := range l.livePeers {
		if k == excludeKey {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RegisterOutcome describes what the caller must do after HandleRegister.
type RegisterOutcome struct {
	AlreadyLive bool // peer is already live: reply PEER_LIST, no new proposal
}

// HandleRegister processes an inbound REGISTER. If the peer is already
// live, a fresh proposal must not be started (§4.2 "duplicates"); the
// caller should reply with the current PEER_LIST. Otherwise the caller
// must broadcast PROPOSE_ADD(p, self) to every other seed and also call
// HandleVoteAdd(p, self) to record its own vote.
func (l *Ledger) HandleRegister(p domain.PeerID) RegisterOutcome {
	l.mu.RLock()
	_, live := l.livePeers[p.String()]
	l.mu.RUnlock()
	return RegisterOutcome{AlreadyLive: live}
}

// ShouldVote reports whether this seed should cast VOTE_ADD for p upon
// receiving a PROPOSE_ADD — false if p is already live.
func (l *Ledger) ShouldVote(p domain.PeerID) bool {
	return !l.IsLive(p)
}

// VoteOutcome describes the result of recording a vote.
type VoteOutcome struct {
	Committed bool // majority just reached on this call; caller must broadcast COMMIT_ADD and reply PEER_LIST
}

// HandleVoteAdd records a VOTE_ADD from voter for peer p. Duplicate votes
// from the same seed are idempotent (§4.2). Returns Committed=true exactly
// once, on the call that first reaches majority.
func (l *Ledger) HandleVoteAdd(p domain.PeerID, voter domain.SeedID) VoteOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := p.String()
	if _, live := l.livePeers[key]; live {
		return VoteOutcome{}
	}

	votes, ok := l.pendingAdd[key]
	if !ok {
		votes = make(map[string]struct{})
		l.pendingAdd[key] = votes
	}
	votes[voter.String()] = struct{}{}

	if len(votes) < l.majorityLocked() {
		return VoteOutcome{}
	}

	l.livePeers[key] = p
	delete(l.pendingAdd, key)
	return VoteOutcome{Committed: true}
}

// HandleCommitAdd applies a COMMIT_ADD broadcast from another seed that
// already reached majority itself. Idempotent.
func (l *Ledger) HandleCommitAdd(p domain.PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := p.String()
	l.livePeers[key] = p
	delete(l.pendingAdd, key)
}

// RemoveOutcome describes the result of recording a DEAD_NODE report.
type RemoveOutcome struct {
	Counted bool // reporter was distinct and authenticated; vote recorded
	Removed bool // majority just reached on this call; caller must broadcast PROPOSE_REMOVE
}

// HandleDeadNode records a DEAD_NODE report from reporter about dead. Per
// §4.2/§9, any distinct authenticated reporter counts toward the
// majority — seed or live peer — so reporterIsAuthenticated must be true
// only when the caller has verified reporter is a known seed or a
// currently-live peer.
func (l *Ledger) HandleDeadNode(dead, reporter domain.PeerID, reporterIsAuthenticated bool) RemoveOutcome {
	if !reporterIsAuthenticated {
		return RemoveOutcome{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := dead.String()
	if _, live := l.livePeers[key]; !live {
		return RemoveOutcome{} // already removed or never live
	}

	reporters, ok := l.pendingRemove[key]
	if !ok {
		reporters = make(map[string]struct{})
		l.pendingRemove[key] = reporters
	}
	reporters[reporter.String()] = struct{}{}

	if len(reporters) < l.majorityLocked() {
		return RemoveOutcome{Counted: true}
	}

	delete(l.livePeers, key)
	delete(l.pendingRemove, key)
	return RemoveOutcome{Counted: true, Removed: true}
}

// HandleProposeRemove applies a PROPOSE_REMOVE broadcast from another
// seed. Per §4.2 this message doubles as the commit notification, so the
// receiving seed removes dead unconditionally. Idempotent.
func (l *Ledger) HandleProposeRemove(dead domain.PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := dead.String()
	delete(l.livePeers, key)
	delete(l.pendingRemove, key)
}

// IsAuthenticatedReporter reports whether candidate is a known seed or a
// currently-live peer — the authentication rule §9 resolves the ADD/
// REMOVE ambiguity with.
func (l *Ledger) IsAuthenticatedReporter(candidate domain.PeerID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, live := l.livePeers[candidate.String()]; live {
		return true
	}
	for _, s := range l.seeds {
		if s == candidate {
			return true
		}
	}
	return false
}

// OtherSeeds returns every seed in the directory except self.
func (l *Ledger) OtherSeeds() []domain.SeedID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.SeedID, 0, len(l.seeds))
	for _, s := range l.seeds {
		if s != l.self {
			out = append(out, s)
		}
	}
	return out
}

func (l *Ledger) majorityLocked() int {
	return len(l.seeds)/2 + 1
}
