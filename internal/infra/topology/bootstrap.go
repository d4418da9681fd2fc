package topology

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/meshlink/overlay/internal/codec"
	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/netio"
)

// ContactSeeds runs phase 1 of §4.3: contact at least floor(n_seeds/2)+1
// seeds, REGISTER, and union the returned PEER_LISTs. A seed that cannot
// be dialed or that never replies within dialTimeout is skipped — the
// overall call only fails if fewer than the majority of seeds were
// reachable.
func ContactSeeds(seedList []domain.SeedID, self domain.PeerID, dialTimeout time.Duration) (map[string]domain.PeerID, error) {
	union := make(map[string]domain.PeerID)
	reached := 0
	majority := len(seedList)/2 + 1

	for _, s := range seedList {
		peers, err := registerWithSeed(s, self, dialTimeout)
		if err != nil {
			continue
		}
		reached++
		for _, p := range peers {
			union[p.String()] = p
		}
	}

	if reached < majority {
		return nil, fmt.Errorf("%w: reached %d of %d seeds, need %d", domain.ErrNoSeedsReachable, reached, len(seedList), majority)
	}
	delete(union, self.String())
	return union, nil
}

func registerWithSeed(seed domain.SeedID, self domain.PeerID, timeout time.Duration) ([]domain.PeerID, error) {
	conn, err := netio.Dial(seed.String(), timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindRegister, Peer: self})); err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	msg, err := codec.Decode(line)
	if err != nil || msg.Kind != domain.KindPeerList {
		return nil, domain.ErrMalformedFrame
	}
	return msg.PeerList, nil
}

// ProbeDegree runs phase 2 of §4.3 for one candidate: a short-lived
// connection, DEG_QUERY, DEG_REPLY(d). A failure or timeout means the
// candidate is treated as unreachable for this round (§4.3 "Edge cases").
func ProbeDegree(candidate domain.PeerID, timeout time.Duration) (int, error) {
	conn, err := netio.Dial(candidate.String(), timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindDegQuery})); err != nil {
		return 0, err
	}
	conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := conn.ReadFrame()
	if err != nil {
		return 0, err
	}
	msg, err := codec.Decode(line)
	if err != nil || msg.Kind != domain.KindDegReply {
		return 0, domain.ErrMalformedFrame
	}
	return msg.Degree, nil
}

// SelectPreferential draws up to c candidates without replacement,
// weighted proportional to degree+1 (§4.3 step 3: "the +1 avoids
// zero-weight for a fresh network"). If fewer than c candidates are
// reachable, every candidate is selected (§4.3 "Edge cases").
func SelectPreferential(candidates map[string]int, c int) []string {
	if len(candidates) <= c {
		out := make([]string, 0, len(candidates))
		for k := range candidates {
			out = append(out, k)
		}
		return out
	}

	keys := make([]string, 0, len(candidates))
	weights := make([]float64, 0, len(candidates))
	total := 0.0
	for k, d := range candidates {
		keys = append(keys, k)
		w := float64(d + 1)
		weights = append(weights, w)
		total += w
	}

	selected := make([]string, 0, c)
	for len(selected) < c && len(keys) > 0 {
		r := rand.Float64() * total
		acc := 0.0
		pick := len(keys) - 1
		for i, w := range weights {
			acc += w
			if r <= acc {
				pick = i
				break
			}
		}
		selected = append(selected, keys[pick])
		total -= weights[pick]
		keys = append(keys[:pick], keys[pick+1:]...)
		weights = append(weights[:pick], weights[pick+1:]...)
	}
	return selected
}

// Connect performs phase 3's CONNECT handshake over a newly established
// long-lived connection and, on success, adds the candidate to the table
// as an outbound neighbor carrying its probed degree as DegreeHint.
// candidate is marked pending for the duration of the dial (§3
// pending_neighbors: "set being connected to; removed on success or
// failure"). Connect does not check the marker before dialing.
func Connect(table *Table, candidate domain.PeerID, self domain.PeerID, degree int, timeout time.Duration) error {
	table.MarkPending(candidate)

	conn, err := netio.Dial(candidate.String(), timeout)
	if err != nil {
		table.ClearPending(candidate)
		return err
	}
	if err := conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindConnect, Peer: self})); err != nil {
		conn.Close()
		table.ClearPending(candidate)
		return err
	}
	table.Add(&Neighbor{ID: candidate, Conn: conn, Outbound: true, DegreeHint: degree})
	return nil
}
