package gossip

import (
	"testing"
)

func TestMessageLogDropsDuplicates(t *testing.T) {
	ml := newMessageLog(0)
	h := hashPayload("1690000000:127.0.0.1:7000:1")

	if ml.seenOrAdd(h) {
		t.Fatal("first sight should not be reported as seen")
	}
	if !ml.seenOrAdd(h) {
		t.Fatal("second sight of the same hash must be reported as seen")
	}
}

func TestMessageLogEvictsOldestBeyondCap(t *testing.T) {
	ml := newMessageLog(2)
	a := hashPayload("a")
	b := hashPayload("b")
	c := hashPayload("c")

	ml.seenOrAdd(a)
	ml.seenOrAdd(b)
	ml.seenOrAdd(c) // evicts a

	if ml.size() != 2 {
		t.Fatalf("size() = %d, want 2", ml.size())
	}
	if ml.seenOrAdd(a) {
		t.Fatal("a should have been evicted and treated as unseen on re-arrival")
	}
}

func TestHashPayloadIsDeterministic(t *testing.T) {
	p := "1690000000:127.0.0.1:7000:42"
	if hashPayload(p) != hashPayload(p) {
		t.Fatal("hashPayload must be deterministic for the same payload")
	}
	if hashPayload(p) == hashPayload(p+"x") {
		t.Fatal("distinct payloads must not collide")
	}
}
