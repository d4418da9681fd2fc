package domain

import (
	"testing"
	"time"
)

func TestPeerIDStringRoundTrip(t *testing.T) {
	tests := []struct {
		ip   string
		port int
	}{
		{"127.0.0.1", 5001},
		{"10.0.0.7", 65535},
	}

	for _, tt := range tests {
		p := PeerID{IP: tt.ip, Port: tt.port}
		s := p.String()
		got, err := ParsePeerID(s)
		if err != nil {
			t.Fatalf("ParsePeerID(%q) error: %v", s, err)
		}
		if got != p {
			t.Errorf("round trip = %+v, want %+v", got, p)
		}
	}
}

func TestParsePeerIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "noport", "127.0.0.1:", ":5001", "127.0.0.1:notaport", "127.0.0.1:99999"} {
		if _, err := ParsePeerID(s); err == nil {
			t.Errorf("ParsePeerID(%q) expected error, got nil", s)
		}
	}
}

func TestGossipPayloadFormat(t *testing.T) {
	origin := PeerID{IP: "127.0.0.1", Port: 6001}
	got := GossipPayload(time.Unix(0, 0), origin, 7)
	want := "0:127.0.0.1:6001:7"
	if got != want {
		t.Errorf("GossipPayload = %q, want %q", got, want)
	}
}
