package codec

import (
	"testing"

	"github.com/meshlink/overlay/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	peer := domain.PeerID{IP: "127.0.0.1", Port: 6001}
	seed1 := domain.PeerID{IP: "127.0.0.1", Port: 5001}
	seed2 := domain.PeerID{IP: "127.0.0.1", Port: 5002}

	cases := []domain.Message{
		{Kind: domain.KindRegister, Peer: peer},
		{Kind: domain.KindProposeAdd, Peer: peer, Proposer: seed1},
		{Kind: domain.KindVoteAdd, Peer: peer, Voter: seed2},
		{Kind: domain.KindCommitAdd, Peer: peer},
		{Kind: domain.KindPeerList, PeerList: []domain.PeerID{seed1, seed2}},
		{Kind: domain.KindPeerList, PeerList: nil},
		{Kind: domain.KindDegQuery},
		{Kind: domain.KindDegReply, Degree: 4},
		{Kind: domain.KindConnect, Peer: peer},
		{Kind: domain.KindGossip, Originator: peer, SeqNo: 3, Timestamp: 1700000000, Payload: "1700000000:127.0.0.1:6001:3"},
		{Kind: domain.KindPing, Nonce: "abc123"},
		{Kind: domain.KindPong, Nonce: "abc123"},
		{Kind: domain.KindDeadNode, DeadPeer: peer, ReporterPeer: seed1, Timestamp: 42},
		{Kind: domain.KindProposeRemove, Peer: peer, Proposer: seed1},
		{Kind: domain.KindCandidateQuery, DeadPeer: peer},
		{Kind: domain.KindCandidateReply, DeadPeer: peer, Reachable: true},
		{Kind: domain.KindCandidateReply, DeadPeer: peer, Reachable: false},
	}

	for _, m := range cases {
		line := Encode(m)
		got, err := Decode(line)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", line, err)
		}
		if got.Kind != m.Kind {
			t.Errorf("kind mismatch for %q: got %v want %v", line, got.Kind, m.Kind)
		}
	}
}

func TestDecodeMalformedFailsClosed(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"GOSSIP only two fields",
		"PING",
		"REGISTER 127.0.0.1",
		"REGISTER 127.0.0.1 notaport",
		"DEAD_NODE 1.2.3.4 80 5.6.7.8",
		"FROBNICATE a b c",
	}
	for _, line := range bad {
		if _, err := Decode(line); err == nil {
			t.Errorf("Decode(%q) expected error, got nil", line)
		}
	}
}

func TestDecodeDropsNeverHalfApply(t *testing.T) {
	m, err := Decode("REGISTER 127.0.0.1 notaport")
	if err == nil {
		t.Fatal("expected error")
	}
	if m.Kind != "" || m.Peer != (domain.PeerID{}) {
		t.Errorf("expected zero-value Message on error, got %+v", m)
	}
}
