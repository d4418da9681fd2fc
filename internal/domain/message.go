package domain

import (
	"strconv"
	"time"
)

// MessageKind tags the fixed set of frames the wire codec recognizes.
// §4.1 of the specification enumerates these exactly; implementations
// must accept and emit only these kinds.
type MessageKind string

const (
	KindRegister      MessageKind = "REGISTER"
	KindProposeAdd    MessageKind = "PROPOSE_ADD"
	KindVoteAdd       MessageKind = "VOTE_ADD"
	KindCommitAdd     MessageKind = "COMMIT_ADD"
	KindPeerList      MessageKind = "PEER_LIST"
	KindDegQuery      MessageKind = "DEG_QUERY"
	KindDegReply      MessageKind = "DEG_REPLY"
	KindConnect       MessageKind = "CONNECT"
	KindGossip        MessageKind = "GOSSIP"
	KindPing          MessageKind = "PING"
	KindPong          MessageKind = "PONG"
	KindDeadNode      MessageKind = "DEAD_NODE"
	KindProposeRemove MessageKind = "PROPOSE_REMOVE"

	// KindCandidateQuery/KindCandidateReply implement the peer-peer local
	// corroboration step of §4.5: "the peer broadcasts a local suspicion
	// to its other neighbors: a DEAD_NODE candidate query. Neighbors
	// respond with their own liveness view of the target." The wire
	// table of §4.1 does not name a frame for this step; these two kinds
	// resolve that silence the way §9 resolves the REMOVE ambiguity —
	// by naming the missing protocol element explicitly.
	KindCandidateQuery MessageKind = "CANDIDATE_QUERY"
	KindCandidateReply MessageKind = "CANDIDATE_REPLY"
)

// Message is the parsed form of a single wire frame. Not every field
// applies to every Kind; the codec only populates the fields relevant to
// the frame it parsed.
type Message struct {
	Kind MessageKind

	Peer     PeerID // REGISTER, PROPOSE_ADD, VOTE_ADD, COMMIT_ADD, CONNECT, PROPOSE_REMOVE (peer_ip/peer_port)
	Proposer SeedID // PROPOSE_ADD
	Voter    SeedID // VOTE_ADD

	PeerList []PeerID // PEER_LIST

	Degree int // DEG_REPLY

	Originator PeerID // GOSSIP
	SeqNo      uint64 // GOSSIP
	Timestamp  int64  // GOSSIP, DEAD_NODE (unix seconds)
	Payload    string // GOSSIP

	Nonce string // PING, PONG

	DeadPeer     PeerID // DEAD_NODE, CANDIDATE_QUERY, CANDIDATE_REPLY
	ReporterPeer PeerID // DEAD_NODE

	Reachable bool // CANDIDATE_REPLY: whether the replying neighbor's own test ping of DeadPeer succeeded
}

// GossipPayload formats the canonical payload string for an originated
// message: "<timestamp>:<originator_id>:<seq_no>".
func GossipPayload(ts time.Time, originator PeerID, seq uint64) string {
	return strconv.FormatInt(ts.Unix(), 10) + ":" + originator.String() + ":" + strconv.FormatUint(seq, 10)
}
