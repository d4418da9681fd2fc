// Package codec frames and parses the fixed line-oriented control protocol
// of §4.1: whitespace-delimited ASCII fields, newline-terminated frames.
// Parsing fails closed — a malformed frame returns an error and is never
// half-applied by the caller.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meshlink/overlay/internal/domain"
)

// Encode renders a Message as a single wire frame without its trailing
// newline. Callers write the returned string followed by "\n" (the
// newline framing is handled by internal/netio, not here).
func Encode(m domain.Message) string {
	var b strings.Builder
	b.WriteString(string(m.Kind))

	switch m.Kind {
	case domain.KindRegister, domain.KindConnect:
		writeField(&b, m.Peer.IP)
		writeField(&b, strconv.Itoa(m.Peer.Port))
	case domain.KindProposeAdd:
		writeField(&b, m.Peer.IP)
		writeField(&b, strconv.Itoa(m.Peer.Port))
		writeField(&b, m.Proposer.String())
	case domain.KindVoteAdd:
		writeField(&b, m.Peer.IP)
		writeField(&b, strconv.Itoa(m.Peer.Port))
		writeField(&b, m.Voter.String())
	case domain.KindCommitAdd:
		writeField(&b, m.Peer.IP)
		writeField(&b, strconv.Itoa(m.Peer.Port))
	case domain.KindPeerList:
		for _, p := range m.PeerList {
			writeField(&b, p.String())
		}
	case domain.KindDegQuery:
		// no fields
	case domain.KindDegReply:
		writeField(&b, strconv.Itoa(m.Degree))
	case domain.KindGossip:
		writeField(&b, m.Originator.String())
		writeField(&b, strconv.FormatUint(m.SeqNo, 10))
		writeField(&b, strconv.FormatInt(m.Timestamp, 10))
		writeField(&b, m.Payload)
	case domain.KindPing, domain.KindPong:
		writeField(&b, m.Nonce)
	case domain.KindDeadNode:
		writeField(&b, m.DeadPeer.IP)
		writeField(&b, strconv.Itoa(m.DeadPeer.Port))
		writeField(&b, m.ReporterPeer.IP)
		writeField(&b, strconv.Itoa(m.ReporterPeer.Port))
		writeField(&b, strconv.FormatInt(m.Timestamp, 10))
	case domain.KindProposeRemove:
		writeField(&b, m.Peer.IP)
		writeField(&b, strconv.Itoa(m.Peer.Port))
		writeField(&b, m.Proposer.String())
	case domain.KindCandidateQuery:
		writeField(&b, m.DeadPeer.IP)
		writeField(&b, strconv.Itoa(m.DeadPeer.Port))
	case domain.KindCandidateReply:
		writeField(&b, m.DeadPeer.IP)
		writeField(&b, strconv.Itoa(m.DeadPeer.Port))
		writeField(&b, strconv.FormatBool(m.Reachable))
	}

	return b.String()
}

func writeField(b *strings.Builder, f string) {
	b.WriteByte(' ')
	b.WriteString(f)
}

// Decode parses a single wire frame (no trailing newline) into a Message.
// Malformed input returns a wrapped domain.ErrMalformedFrame (an empty
// frame returns domain.ErrEmptyFrame, an unknown kind a wrapped
// domain.ErrUnknownKind) and never a partially-populated Message —
// callers must discard m on error.
func Decode(line string) (domain.Message, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return domain.Message{}, domain.ErrEmptyFrame
	}

	kind := domain.MessageKind(fields[0])
	args := fields[1:]

	switch kind {
	case domain.KindRegister, domain.KindConnect:
		peer, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Kind: kind, Peer: peer}, nil

	case domain.KindProposeAdd:
		if len(args) != 3 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "PROPOSE_ADD needs 3 fields")
		}
		peer, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		proposer, err := domain.ParsePeerID(args[2])
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad proposer")
		}
		return domain.Message{Kind: kind, Peer: peer, Proposer: proposer}, nil

	case domain.KindVoteAdd:
		if len(args) != 3 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "VOTE_ADD needs 3 fields")
		}
		peer, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		voter, err := domain.ParsePeerID(args[2])
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad voter")
		}
		return domain.Message{Kind: kind, Peer: peer, Voter: voter}, nil

	case domain.KindCommitAdd:
		peer, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Kind: kind, Peer: peer}, nil

	case domain.KindPeerList:
		peers := make([]domain.PeerID, 0, len(args))
		for _, a := range args {
			p, err := domain.ParsePeerID(a)
			if err != nil {
				return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad peer in PEER_LIST")
			}
			peers = append(peers, p)
		}
		return domain.Message{Kind: kind, PeerList: peers}, nil

	case domain.KindDegQuery:
		return domain.Message{Kind: kind}, nil

	case domain.KindDegReply:
		if len(args) != 1 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "DEG_REPLY needs 1 field")
		}
		d, err := strconv.Atoi(args[0])
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad degree")
		}
		return domain.Message{Kind: kind, Degree: d}, nil

	case domain.KindGossip:
		if len(args) != 4 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "GOSSIP needs 4 fields")
		}
		originator, err := domain.ParsePeerID(args[0])
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad originator")
		}
		seq, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad seq_no")
		}
		ts, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad timestamp")
		}
		return domain.Message{Kind: kind, Originator: originator, SeqNo: seq, Timestamp: ts, Payload: args[3]}, nil

	case domain.KindPing, domain.KindPong:
		if len(args) != 1 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "PING/PONG needs 1 field")
		}
		return domain.Message{Kind: kind, Nonce: args[0]}, nil

	case domain.KindDeadNode:
		if len(args) != 5 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "DEAD_NODE needs 5 fields")
		}
		dead, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		reporter, err := peerFromFields(args, 2)
		if err != nil {
			return domain.Message{}, err
		}
		ts, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad timestamp")
		}
		return domain.Message{Kind: kind, DeadPeer: dead, ReporterPeer: reporter, Timestamp: ts}, nil

	case domain.KindProposeRemove:
		if len(args) != 3 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "PROPOSE_REMOVE needs 3 fields")
		}
		peer, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		proposer, err := domain.ParsePeerID(args[2])
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad proposer")
		}
		return domain.Message{Kind: kind, Peer: peer, Proposer: proposer}, nil

	case domain.KindCandidateQuery:
		dead, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Kind: kind, DeadPeer: dead}, nil

	case domain.KindCandidateReply:
		if len(args) != 3 {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "CANDIDATE_REPLY needs 3 fields")
		}
		dead, err := peerFromFields(args, 0)
		if err != nil {
			return domain.Message{}, err
		}
		reachable, err := strconv.ParseBool(args[2])
		if err != nil {
			return domain.Message{}, wrap(domain.ErrMalformedFrame, "bad reachable flag")
		}
		return domain.Message{Kind: kind, DeadPeer: dead, Reachable: reachable}, nil

	default:
		return domain.Message{}, wrap(domain.ErrUnknownKind, string(kind))
	}
}

// peerFromFields reads an (ip, port) pair starting at args[i].
func peerFromFields(args []string, i int) (domain.PeerID, error) {
	if i+1 >= len(args) {
		return domain.PeerID{}, wrap(domain.ErrMalformedFrame, "missing ip/port")
	}
	port, err := strconv.Atoi(args[i+1])
	if err != nil || port <= 0 || port > 65535 {
		return domain.PeerID{}, wrap(domain.ErrMalformedFrame, "bad port")
	}
	return domain.PeerID{IP: args[i], Port: port}, nil
}

func wrap(base error, detail string) error {
	return fmt.Errorf("%w: %s", base, detail)
}
