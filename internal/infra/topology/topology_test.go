package topology

import (
	"testing"

	"github.com/meshlink/overlay/internal/domain"
)

func TestTableHasRoomRespectsOutboundCap(t *testing.T) {
	tbl := NewTable(3)
	for i := 0; i < 3; i++ {
		tbl.Add(&Neighbor{ID: domain.PeerID{IP: "127.0.0.1", Port: 7000 + i}, Outbound: true})
	}
	if tbl.HasRoom() {
		t.Fatal("HasRoom() = true after reaching outbound cap")
	}
	if tbl.OutboundCount() != 3 {
		t.Fatalf("OutboundCount() = %d, want 3", tbl.OutboundCount())
	}
}

func TestTableInboundDoesNotCountAgainstCap(t *testing.T) {
	tbl := NewTable(1)
	tbl.Add(&Neighbor{ID: domain.PeerID{IP: "127.0.0.1", Port: 7000}, Outbound: true})
	tbl.Add(&Neighbor{ID: domain.PeerID{IP: "127.0.0.1", Port: 7001}, Outbound: false})

	if tbl.HasRoom() {
		t.Fatal("outbound cap already reached, HasRoom() should be false")
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
}

func TestTableExceptExcludesSender(t *testing.T) {
	tbl := NewTable(5)
	a := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	b := domain.PeerID{IP: "127.0.0.1", Port: 7001}
	tbl.Add(&Neighbor{ID: a})
	tbl.Add(&Neighbor{ID: b})

	fanOut := tbl.Except(a)
	if len(fanOut) != 1 || fanOut[0].ID != b {
		t.Fatalf("Except(a) = %+v, want only b", fanOut)
	}
}

func TestTablePendingLifecycle(t *testing.T) {
	tbl := NewTable(3)
	id := domain.PeerID{IP: "127.0.0.1", Port: 7000}

	tbl.MarkPending(id)
	if !tbl.IsPending(id) {
		t.Fatal("expected pending after MarkPending")
	}
	tbl.ClearPending(id)
	if tbl.IsPending(id) {
		t.Fatal("expected not pending after ClearPending")
	}
}

func TestTableAddClearsPending(t *testing.T) {
	tbl := NewTable(3)
	id := domain.PeerID{IP: "127.0.0.1", Port: 7000}
	tbl.MarkPending(id)
	tbl.Add(&Neighbor{ID: id})
	if tbl.IsPending(id) {
		t.Fatal("Add should clear the pending marker")
	}
}

func TestTableDegreeMatchesLen(t *testing.T) {
	tbl := NewTable(3)
	tbl.Add(&Neighbor{ID: domain.PeerID{IP: "127.0.0.1", Port: 7000}})
	tbl.Add(&Neighbor{ID: domain.PeerID{IP: "127.0.0.1", Port: 7001}})
	if tbl.Degree() != 2 {
		t.Fatalf("Degree() = %d, want 2", tbl.Degree())
	}
}

func TestSelectPreferentialReturnsAllWhenCandidatesBelowCap(t *testing.T) {
	candidates := map[string]int{"a": 1, "b": 2}
	selected := SelectPreferential(candidates, 5)
	if len(selected) != 2 {
		t.Fatalf("len(selected) = %d, want 2 (fewer candidates than cap)", len(selected))
	}
}

func TestSelectPreferentialReturnsExactlyCapWhenEnoughCandidates(t *testing.T) {
	candidates := map[string]int{"a": 0, "b": 1, "c": 2, "d": 3, "e": 10}
	selected := SelectPreferential(candidates, 3)
	if len(selected) != 3 {
		t.Fatalf("len(selected) = %d, want 3", len(selected))
	}
	seen := make(map[string]bool)
	for _, s := range selected {
		if seen[s] {
			t.Fatalf("SelectPreferential returned duplicate %q (sampling must be without replacement)", s)
		}
		seen[s] = true
	}
}

func TestSelectPreferentialFavorsHigherDegree(t *testing.T) {
	hits := 0
	const trials = 400
	for i := 0; i < trials; i++ {
		candidates := map[string]int{"high": 100, "low": 0, "mid": 1, "filler": 1}
		selected := SelectPreferential(candidates, 1)
		if len(selected) == 1 && selected[0] == "high" {
			hits++
		}
	}
	// With weight 101 out of 106 total, "high" should win the overwhelming
	// majority of single-slot draws; a generous threshold avoids flakiness.
	if hits < trials/2 {
		t.Fatalf("high-degree candidate won %d/%d draws, expected a strong majority", hits, trials)
	}
}
