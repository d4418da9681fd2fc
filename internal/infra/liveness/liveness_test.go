package liveness

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/infra/topology"
	"github.com/meshlink/overlay/internal/netio"
)

func testConfig() Config {
	return Config{
		PingInterval:  50 * time.Millisecond,
		MissThreshold: 3,
		DialTimeout:   20 * time.Millisecond,
	}
}

func TestRecordMissBelowThresholdStaysHealthy(t *testing.T) {
	self := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	target := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	tbl := topology.NewTable(3)
	tbl.Add(&topology.Neighbor{ID: target})

	e := New(testConfig(), self, tbl, nil, nil)
	e.recordMiss(target)
	e.recordMiss(target)

	n, _ := tbl.Get(target)
	if n.State == domain.Suspect || n.State == domain.Dead {
		t.Fatalf("state = %v after 2 misses (threshold 3), want Healthy", n.State)
	}
}

func TestRecordMissAtThresholdTransitionsToSuspect(t *testing.T) {
	self := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	target := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	other := domain.PeerID{IP: "127.0.0.1", Port: 7002}
	tbl := topology.NewTable(3)
	tbl.Add(&topology.Neighbor{ID: target})
	// A second neighbor keeps the corroboration quorum open; with no other
	// neighbor, beginSuspect resolves the target DEAD at once.
	local, remote := net.Pipe()
	defer local.Close()
	go io.Copy(io.Discard, remote)
	tbl.Add(&topology.Neighbor{ID: other, Conn: netio.Wrap(local)})

	e := New(testConfig(), self, tbl, nil, nil)
	e.recordMiss(target)
	e.recordMiss(target)
	e.recordMiss(target)

	n, _ := tbl.Get(target)
	if n.State != domain.Suspect {
		t.Fatalf("state = %v after 3 misses, want Suspect", n.State)
	}
}

func TestBeginSuspectWithNoOtherNeighborsResolvesDeadImmediately(t *testing.T) {
	self := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	target := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	tbl := topology.NewTable(3)
	tbl.Add(&topology.Neighbor{ID: target})

	e := New(testConfig(), self, tbl, nil, nil)
	e.beginSuspect(target)

	if _, ok := tbl.Get(target); ok {
		t.Fatal("target should have been removed after an uncorroborated DEAD verdict")
	}
}

func TestHandleCandidateReplyRecordsUnreachableVote(t *testing.T) {
	self := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	target := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	other := domain.PeerID{IP: "127.0.0.1", Port: 7002}
	tbl := topology.NewTable(3)
	tbl.Add(&topology.Neighbor{ID: target})
	tbl.Add(&topology.Neighbor{ID: other})

	e := New(testConfig(), self, tbl, nil, nil)
	key := target.String()
	e.mu.Lock()
	e.corroboration[key] = &corroQuery{total: 1}
	e.mu.Unlock()

	e.HandleCandidateReply(target, false)

	e.mu.Lock()
	votes := e.corroboration[key].unreachableVotes
	e.mu.Unlock()
	if votes != 1 {
		t.Fatalf("unreachableVotes = %d, want 1", votes)
	}
}

func TestHandleCandidateReplyIgnoresUnknownTarget(t *testing.T) {
	self := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	target := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	tbl := topology.NewTable(3)

	e := New(testConfig(), self, tbl, nil, nil)
	// Must not panic when no corroboration is in flight for target.
	e.HandleCandidateReply(target, false)
}

func TestRegisterAndUnregisterNeighborManageDeadlineQueue(t *testing.T) {
	self := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	target := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	tbl := topology.NewTable(3)

	e := New(testConfig(), self, tbl, nil, nil)
	e.RegisterNeighbor(target)
	if e.dq.Len() != 1 {
		t.Fatalf("dq.Len() = %d, want 1 after RegisterNeighbor", e.dq.Len())
	}
	e.UnregisterNeighbor(target)
	if e.dq.Len() != 0 {
		t.Fatalf("dq.Len() = %d, want 0 after UnregisterNeighbor", e.dq.Len())
	}
}

func TestHandlePingRespondsWithMatchingNonce(t *testing.T) {
	msg := HandlePing("abc123")
	if msg.Kind != domain.KindPong || msg.Nonce != "abc123" {
		t.Fatalf("HandlePing(%q) = %+v, want PONG with matching nonce", "abc123", msg)
	}
}
