// Package topology implements the peer-side Bootstrap & Topology Builder
// (C3, §4.3) and the Peer Neighbor Table (§3) it populates: preferential
// attachment by weighted random sampling, grounded on the teacher's SWIM
// randomMember/randomMembers sampling (internal/infra/gossip/swim.go) and
// drawn here with rand.Float64 against cumulative weights.
package topology

import (
	"sync"

	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/netio"
)

// Neighbor is one entry of the Peer Neighbor Table (§3): an open
// connection plus the last-known degree that neighbor reported.
type Neighbor struct {
	ID         domain.PeerID
	Conn       *netio.Conn
	DegreeHint int
	Outbound   bool // true if we selected them (counts against the cap c)
	State      domain.LivenessState
}

// Table is the peer-side Neighbor Table. |neighbors (outbound)| ≤ c is
// enforced by the caller before adding an outbound entry; inbound
// attachments are uncapped (§4.3 "Edge cases").
type Table struct {
	mu            sync.RWMutex
	cap           int
	neighbors     map[string]*Neighbor
	pendingPeers  map[string]struct{} // being connected to; removed on success or failure
}

// NewTable creates an empty table with outbound attachment cap c.
func NewTable(c int) *Table {
	return &Table{
		cap:          c,
		neighbors:    make(map[string]*Neighbor),
		pendingPeers: make(map[string]struct{}),
	}
}

// OutboundCount returns the current number of outbound (capped) neighbors.
func (t *Table) OutboundCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, nb := range t.neighbors {
		if nb.Outbound {
			n++
		}
	}
	return n
}

// Len returns the total neighbor count, inbound and outbound.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.neighbors)
}

// HasRoom reports whether another outbound attachment may be added
// without exceeding the cap.
func (t *Table) HasRoom() bool {
	return t.OutboundCount() < t.cap
}

// MarkPending records that a connection attempt to id is underway, as
// reported by IsPending. No dial path consults the marker, so it does not
// by itself prevent a second dial of the same candidate.
func (t *Table) MarkPending(id domain.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingPeers[id.String()] = struct{}{}
}

// ClearPending removes id from pendingPeers (called on both success and
// failure of the connection attempt).
func (t *Table) ClearPending(id domain.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pendingPeers, id.String())
}

// IsPending reports whether a connection attempt to id is in flight.
func (t *Table) IsPending(id domain.PeerID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pendingPeers[id.String()]
	return ok
}

// Add inserts a neighbor, atomically clearing any pending marker.
func (t *Table) Add(n *Neighbor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.State = domain.Healthy
	t.neighbors[n.ID.String()] = n
	delete(t.pendingPeers, n.ID.String())
}

// Get returns the neighbor entry for id, if present.
func (t *Table) Get(id domain.PeerID) (*Neighbor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.neighbors[id.String()]
	return n, ok
}

// Remove closes and deletes the neighbor entry for id. Safe to call on a
// neighbor that does not exist.
func (t *Table) Remove(id domain.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.neighbors[id.String()]; ok {
		if n.Conn != nil {
			n.Conn.Close()
		}
		delete(t.neighbors, id.String())
	}
}

// All returns a snapshot slice of current neighbors.
func (t *Table) All() []*Neighbor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Neighbor, 0, len(t.neighbors))
	for _, n := range t.neighbors {
		out = append(out, n)
	}
	return out
}

// Except returns every neighbor other than exclude — the gossip
// forwarding fan-out set (§4.4: "forward ... to every neighbor except N").
func (t *Table) Except(exclude domain.PeerID) []*Neighbor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	excludeKey := exclude.String()
	out := make([]*Neighbor, 0, len(t.neighbors))
	for k, n := range t.neighbors {
		if k == excludeKey {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Degree reports how many neighbors we currently have, the value this
// node answers DEG_QUERY with.
func (t *Table) Degree() int {
	return t.Len()
}

// SetDegreeHint updates the last-known degree a neighbor reported. The
// node runs the degree probe only once, during bootstrap, and records the
// probed degree through Connect; nothing else in the node calls this.
func (t *Table) SetDegreeHint(id domain.PeerID, degree int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.neighbors[id.String()]; ok {
		n.DegreeHint = degree
	}
}

// SetState transitions a neighbor's liveness state (§4.5).
func (t *Table) SetState(id domain.PeerID, state domain.LivenessState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.neighbors[id.String()]; ok {
		n.State = state
	}
}
