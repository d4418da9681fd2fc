package auditlog

import (
	"path/filepath"
	"testing"

	"github.com/meshlink/overlay/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordCommitAddAndRecentEvents(t *testing.T) {
	db := openTestDB(t)
	seed := domain.SeedID{IP: "127.0.0.1", Port: 5001}
	peer := domain.PeerID{IP: "127.0.0.1", Port: 6001}

	if err := db.RecordCommitAdd(peer, seed, 2); err != nil {
		t.Fatalf("RecordCommitAdd: %v", err)
	}

	events, err := db.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Kind != "COMMIT_ADD" || events[0].Peer != peer || events[0].VoteCount != 2 {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestEventsForPeerOrdersOldestFirst(t *testing.T) {
	db := openTestDB(t)
	seed := domain.SeedID{IP: "127.0.0.1", Port: 5001}
	peer := domain.PeerID{IP: "127.0.0.1", Port: 6001}

	db.RecordCommitAdd(peer, seed, 2)
	db.RecordRemove(peer, seed, 2)

	events, err := db.EventsForPeer(peer)
	if err != nil {
		t.Fatalf("EventsForPeer: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != "COMMIT_ADD" || events[1].Kind != "REMOVE" {
		t.Errorf("expected COMMIT_ADD then REMOVE, got %s then %s", events[0].Kind, events[1].Kind)
	}
}

func TestEventsForPeerExcludesOtherPeers(t *testing.T) {
	db := openTestDB(t)
	seed := domain.SeedID{IP: "127.0.0.1", Port: 5001}
	p1 := domain.PeerID{IP: "127.0.0.1", Port: 6001}
	p2 := domain.PeerID{IP: "127.0.0.1", Port: 6002}

	db.RecordCommitAdd(p1, seed, 2)
	db.RecordCommitAdd(p2, seed, 2)

	events, err := db.EventsForPeer(p1)
	if err != nil {
		t.Fatalf("EventsForPeer: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
}
