// Package node wires the codec, ledger, topology, gossip, liveness, and
// auditlog packages into the two runnable node roles the specification
// names: Seed and Peer. The accept-loop-per-listener plus
// goroutine-per-connection read loop is grounded on the teacher's SWIM
// Start (formerly internal/infra/gossip/swim.go): a receiver goroutine
// alongside a ticker-driven background loop.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshlink/overlay/internal/api"
	"github.com/meshlink/overlay/internal/codec"
	"github.com/meshlink/overlay/internal/config"
	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/infra/auditlog"
	"github.com/meshlink/overlay/internal/infra/ledger"
	"github.com/meshlink/overlay/internal/infra/liveness"
	"github.com/meshlink/overlay/internal/infra/observability"
	"github.com/meshlink/overlay/internal/logging"
	"github.com/meshlink/overlay/internal/netio"
)

// Seed runs the Membership Ledger (C2) and answers the control-protocol
// frames of §4.1 that flow between seeds and between a peer and the
// seed it registers with.
type Seed struct {
	self        domain.SeedID
	ledger      *ledger.Ledger
	audit       *auditlog.DB // optional, nil disables the audit trail
	log         *logging.Logger
	dialTimeout config.LivenessTuning

	listener *netio.Listener
	wg       sync.WaitGroup

	mu                   sync.Mutex
	pendingRegistrations map[string]*netio.Conn // peer key -> conn awaiting PEER_LIST
}

// NewSeed creates a Seed for self, aware of the full seed directory.
func NewSeed(self domain.SeedID, seeds []domain.SeedID, cfg config.Tuning, log *logging.Logger, audit *auditlog.DB) *Seed {
	return &Seed{
		self:                 self,
		ledger:               ledger.New(self, seeds),
		audit:                audit,
		log:                  log,
		dialTimeout:          cfg.Liveness,
		pendingRegistrations: make(map[string]*netio.Conn),
	}
}

// Start binds the listening socket and begins accepting connections.
func (s *Seed) Start(ctx context.Context) error {
	l, err := netio.Listen(s.self.String())
	if err != nil {
		return fmt.Errorf("seed %s: %w", s.self, err)
	}
	s.listener = l

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Stop closes the listener first, then waits for in-flight connection
// handlers to drain (§5: "closes all listening sockets first, then
// drains and closes outbound").
func (s *Seed) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

// Status implements api.StatusProvider.
func (s *Seed) Status() api.Status {
	st := api.Status{
		Role:      "seed",
		Self:      s.self.String(),
		LivePeers: api.PeerIDStrings(s.ledger.LivePeers(domain.PeerID{})),
		Traces:    api.RecentTraces(20),
	}
	if s.audit != nil {
		if events, err := s.audit.RecentEvents(20); err == nil {
			st.AuditHistory = make([]api.AuditEvent, len(events))
			for i, e := range events {
				st.AuditHistory[i] = api.AuditEvent{
					Kind:       e.Kind,
					Peer:       e.Peer.String(),
					Reporter:   e.Reporter,
					VoteCount:  e.VoteCount,
					RecordedAt: e.RecordedAt.Format(time.RFC3339),
				}
			}
		} else if s.log != nil {
			s.log.Printf("audit history read failed: %v", err)
		}
	}
	return st
}

func (s *Seed) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if s.log != nil {
					s.log.Printf("accept error: %v", err)
				}
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Seed) handleConn(conn *netio.Conn) {
	defer conn.Close()
	for {
		line, err := conn.ReadFrame()
		if err != nil {
			return
		}
		msg, err := codec.Decode(line)
		if err != nil {
			observability.MalformedFramesDropped.WithLabelValues("seed").Inc()
			if s.log != nil {
				s.log.Printf("dropped malformed frame: %v", err)
			}
			continue
		}
		s.dispatch(conn, msg)
	}
}

func (s *Seed) dispatch(conn *netio.Conn, msg domain.Message) {
	switch msg.Kind {
	case domain.KindRegister:
		s.handleRegister(conn, msg.Peer)
	case domain.KindProposeAdd:
		s.handleProposeAdd(msg.Peer, msg.Proposer)
	case domain.KindVoteAdd:
		s.handleVoteAdd(msg.Peer, msg.Voter)
	case domain.KindCommitAdd:
		s.ledger.HandleCommitAdd(msg.Peer)
		s.refreshLivePeersGauge()
	case domain.KindDeadNode:
		s.handleDeadNode(msg.DeadPeer, msg.ReporterPeer)
	case domain.KindProposeRemove:
		s.ledger.HandleProposeRemove(msg.Peer)
		s.refreshLivePeersGauge()
	case domain.KindPing:
		conn.WriteFrame(codec.Encode(liveness.HandlePing(msg.Nonce)))
	default:
		if s.log != nil {
			s.log.Printf("unexpected kind for a seed: %s", msg.Kind)
		}
	}
}

func (s *Seed) handleRegister(conn *netio.Conn, p domain.PeerID) {
	span := observability.Trace.StartSpan(context.Background(), "consensus.register")
	defer func() { observability.Trace.EndSpan(span, nil) }()

	out := s.ledger.HandleRegister(p)
	if out.AlreadyLive {
		s.replyPeerList(conn, p)
		return
	}

	s.mu.Lock()
	s.pendingRegistrations[p.String()] = conn
	s.mu.Unlock()

	voteOut := s.ledger.HandleVoteAdd(p, s.self)
	observability.ConsensusVotesCast.WithLabelValues("add").Inc()
	if voteOut.Committed {
		s.commitAdd(p)
	}

	frame := codec.Encode(domain.Message{Kind: domain.KindProposeAdd, Peer: p, Proposer: s.self})
	for _, other := range s.ledger.OtherSeeds() {
		go s.sendFrame(other, frame)
	}
}

func (s *Seed) handleProposeAdd(p domain.PeerID, proposer domain.SeedID) {
	if !s.ledger.ShouldVote(p) {
		return
	}
	go s.sendFrame(proposer, codec.Encode(domain.Message{Kind: domain.KindVoteAdd, Peer: p, Voter: s.self}))
}

func (s *Seed) handleVoteAdd(p domain.PeerID, voter domain.SeedID) {
	span := observability.Trace.StartSpan(context.Background(), "consensus.vote_add")
	defer func() { observability.Trace.EndSpan(span, nil) }()

	out := s.ledger.HandleVoteAdd(p, voter)
	observability.ConsensusVotesCast.WithLabelValues("add").Inc()
	if out.Committed {
		s.commitAdd(p)
	}
}

func (s *Seed) commitAdd(p domain.PeerID) {
	observability.ConsensusCommits.Inc()
	s.refreshLivePeersGauge()
	if s.audit != nil {
		if err := s.audit.RecordCommitAdd(p, s.self, s.ledger.Majority()); err != nil && s.log != nil {
			s.log.Printf("audit log write failed: %v", err)
		}
	}

	frame := codec.Encode(domain.Message{Kind: domain.KindCommitAdd, Peer: p})
	for _, other := range s.ledger.OtherSeeds() {
		go s.sendFrame(other, frame)
	}

	s.mu.Lock()
	conn, ok := s.pendingRegistrations[p.String()]
	delete(s.pendingRegistrations, p.String())
	s.mu.Unlock()
	if ok {
		s.replyPeerList(conn, p)
	}
}

func (s *Seed) handleDeadNode(dead, reporter domain.PeerID) {
	span := observability.Trace.StartSpan(context.Background(), "consensus.dead_node")
	defer func() { observability.Trace.EndSpan(span, nil) }()

	authenticated := s.ledger.IsAuthenticatedReporter(reporter)
	out := s.ledger.HandleDeadNode(dead, reporter, authenticated)
	if !out.Removed {
		return
	}

	observability.ConsensusRemovals.Inc()
	s.refreshLivePeersGauge()
	if s.audit != nil {
		if err := s.audit.RecordRemove(dead, s.self, s.ledger.Majority()); err != nil && s.log != nil {
			s.log.Printf("audit log write failed: %v", err)
		}
	}

	frame := codec.Encode(domain.Message{Kind: domain.KindProposeRemove, Peer: dead, Proposer: s.self})
	for _, other := range s.ledger.OtherSeeds() {
		go s.sendFrame(other, frame)
	}
}

func (s *Seed) replyPeerList(conn *netio.Conn, exclude domain.PeerID) {
	peers := s.ledger.LivePeers(exclude)
	if err := conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindPeerList, PeerList: peers})); err != nil && s.log != nil {
		s.log.Printf("reply PEER_LIST failed: %v", err)
	}
}

func (s *Seed) sendFrame(to domain.SeedID, frame string) {
	conn, err := netio.Dial(to.String(), s.dialTimeout.DialTimeout)
	if err != nil {
		if s.log != nil {
			s.log.Printf("dial seed %s failed: %v", to, err)
		}
		return
	}
	defer conn.Close()
	if err := conn.WriteFrame(frame); err != nil && s.log != nil {
		s.log.Printf("send to seed %s failed: %v", to, err)
	}
}

func (s *Seed) refreshLivePeersGauge() {
	observability.LivePeersGauge.Set(float64(len(s.ledger.LivePeers(domain.PeerID{}))))
}
