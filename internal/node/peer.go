package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshlink/overlay/internal/api"
	"github.com/meshlink/overlay/internal/codec"
	"github.com/meshlink/overlay/internal/config"
	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/infra/gossip"
	"github.com/meshlink/overlay/internal/infra/liveness"
	"github.com/meshlink/overlay/internal/infra/observability"
	"github.com/meshlink/overlay/internal/infra/topology"
	"github.com/meshlink/overlay/internal/logging"
	"github.com/meshlink/overlay/internal/netio"
)

// Peer runs the Bootstrap & Topology Builder (C3), Gossip Engine (C4),
// and Liveness Detector (C5) for one peer node.
type Peer struct {
	self  domain.PeerID
	seeds []domain.SeedID
	cfg   config.Tuning
	log   *logging.Logger

	table    *topology.Table
	gossipE  *gossip.Engine
	liveness *liveness.Engine

	listener *netio.Listener
	wg       sync.WaitGroup
}

// NewPeer creates a Peer for self, given the seed directory it bootstraps
// from.
func NewPeer(self domain.PeerID, seeds []domain.SeedID, cfg config.Tuning, log *logging.Logger) *Peer {
	table := topology.NewTable(cfg.Topology.AttachmentCap)
	return &Peer{
		self:  self,
		seeds: seeds,
		cfg:   cfg,
		log:   log,
		table: table,
		gossipE: gossip.New(gossip.Config{
			Interval:      cfg.Gossip.Interval,
			MaxOriginated: cfg.Gossip.MaxOriginated,
			LogCap:        cfg.Gossip.LogCap,
		}, self, table, log),
		liveness: liveness.New(liveness.Config{
			PingInterval:  cfg.Liveness.PingInterval,
			MissThreshold: cfg.Liveness.MissThreshold,
			DialTimeout:   cfg.Liveness.DialTimeout,
		}, self, table, seeds, log),
	}
}

// Start binds the listening socket, launches the gossip and liveness
// background loops, and runs the bootstrap sequence of §4.3.
func (p *Peer) Start(ctx context.Context) error {
	l, err := netio.Listen(p.self.String())
	if err != nil {
		return fmt.Errorf("peer %s: %w", p.self, err)
	}
	p.listener = l

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.acceptLoop(ctx)
	}()

	go p.gossipE.Run(ctx)
	go p.liveness.Run(ctx)

	p.bootstrap()
	return nil
}

// Stop closes the listener first, then every neighbor connection, then
// waits for handlers to drain (§5).
func (p *Peer) Stop() {
	if p.listener != nil {
		p.listener.Close()
	}
	for _, n := range p.table.All() {
		p.table.Remove(n.ID)
	}
	p.wg.Wait()
}

// Status implements api.StatusProvider.
func (p *Peer) Status() api.Status {
	neighbors := p.table.All()
	infos := make([]api.NeighborInfo, len(neighbors))
	for i, n := range neighbors {
		infos[i] = api.NeighborInfo{
			ID:         n.ID.String(),
			DegreeHint: n.DegreeHint,
			Outbound:   n.Outbound,
			State:      n.State.String(),
		}
	}
	return api.Status{
		Role:      "peer",
		Self:      p.self.String(),
		Neighbors: infos,
		LogSize:   p.gossipE.LogSize(),
		Traces:    api.RecentTraces(20),
	}
}

// bootstrap runs the ordered phases of §4.3: contact seeds, probe degree,
// preferential attachment, connect. Traced as a single span so the whole
// bootstrap pass can be correlated in /status and in logs.
func (p *Peer) bootstrap() {
	span := observability.Trace.StartSpan(context.Background(), "topology.bootstrap")
	var spanErr error
	defer func() { observability.Trace.EndSpan(span, spanErr) }()

	union, err := topology.ContactSeeds(p.seeds, p.self, p.cfg.Liveness.DialTimeout)
	if err != nil {
		spanErr = err
		if p.log != nil {
			p.log.Printf("bootstrap: %v", err)
		}
		return
	}
	if len(union) == 0 {
		return // bootstrap peer: runs with zero neighbors until others attach inbound
	}

	degrees := make(map[string]int, len(union))
	byKey := make(map[string]domain.PeerID, len(union))
	for key, candidate := range union {
		d, err := topology.ProbeDegree(candidate, p.cfg.Liveness.DialTimeout)
		if err != nil {
			continue // unreachable this round; excluded per §4.3 "Edge cases"
		}
		degrees[key] = d
		byKey[key] = candidate
	}

	for _, key := range topology.SelectPreferential(degrees, p.cfg.Topology.AttachmentCap) {
		candidate := byKey[key]
		if err := topology.Connect(p.table, candidate, p.self, degrees[key], p.cfg.Liveness.DialTimeout); err != nil {
			if p.log != nil {
				p.log.Printf("connect to %s failed: %v", candidate, err)
			}
			continue
		}
		p.liveness.RegisterNeighbor(candidate)
		observability.OutboundNeighbors.Set(float64(p.table.OutboundCount()))
		go p.readLoop(candidate)
	}
}

func (p *Peer) acceptLoop(ctx context.Context) {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if p.log != nil {
					p.log.Printf("accept error: %v", err)
				}
				return
			}
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handleInbound(conn)
		}()
	}
}

// handleInbound dispatches the first frame of a new inbound connection:
// a CONNECT attaches a long-lived neighbor (§4.3 "Inbound acceptance");
// a DEG_QUERY or PING is a short-lived probe answered and closed.
func (p *Peer) handleInbound(conn *netio.Conn) {
	line, err := conn.ReadFrame()
	if err != nil {
		conn.Close()
		return
	}
	msg, err := codec.Decode(line)
	if err != nil {
		observability.MalformedFramesDropped.WithLabelValues("peer").Inc()
		conn.Close()
		return
	}

	switch msg.Kind {
	case domain.KindDegQuery:
		conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindDegReply, Degree: p.table.Degree()}))
		conn.Close()
	case domain.KindPing:
		conn.WriteFrame(codec.Encode(liveness.HandlePing(msg.Nonce)))
		conn.Close()
	case domain.KindConnect:
		id := msg.Peer
		p.table.Add(&topology.Neighbor{ID: id, Conn: conn, Outbound: false})
		p.liveness.RegisterNeighbor(id)
		observability.InboundNeighbors.Set(float64(p.table.Len() - p.table.OutboundCount()))
		p.dispatchLoop(id, conn)
	default:
		observability.MalformedFramesDropped.WithLabelValues("peer").Inc()
		conn.Close()
	}
}

func (p *Peer) readLoop(id domain.PeerID) {
	n, ok := p.table.Get(id)
	if !ok {
		return
	}
	p.dispatchLoop(id, n.Conn)
}

// dispatchLoop is the independent reader goroutine for one attached
// neighbor connection (§5), running until the connection errors or
// closes.
func (p *Peer) dispatchLoop(from domain.PeerID, conn *netio.Conn) {
	defer p.dropNeighbor(from)
	for {
		line, err := conn.ReadFrame()
		if err != nil {
			return
		}
		msg, err := codec.Decode(line)
		if err != nil {
			observability.MalformedFramesDropped.WithLabelValues("peer").Inc()
			if p.log != nil {
				p.log.Printf("dropped malformed frame from %s: %v", from, err)
			}
			continue
		}
		p.handleFrame(from, conn, msg)
	}
}

func (p *Peer) handleFrame(from domain.PeerID, conn *netio.Conn, msg domain.Message) {
	switch msg.Kind {
	case domain.KindDegQuery:
		conn.WriteFrame(codec.Encode(domain.Message{Kind: domain.KindDegReply, Degree: p.table.Degree()}))
	case domain.KindGossip:
		p.gossipE.HandleGossip(msg, from)
	case domain.KindPing:
		conn.WriteFrame(codec.Encode(liveness.HandlePing(msg.Nonce)))
	case domain.KindPong:
		p.liveness.HandlePong(from, msg.Nonce)
	case domain.KindCandidateQuery:
		conn.WriteFrame(codec.Encode(p.liveness.HandleCandidateQuery(msg.DeadPeer)))
	case domain.KindCandidateReply:
		p.liveness.HandleCandidateReply(msg.DeadPeer, msg.Reachable)
	default:
		if p.log != nil {
			p.log.Printf("unexpected kind from %s: %s", from, msg.Kind)
		}
	}
}

func (p *Peer) dropNeighbor(id domain.PeerID) {
	p.table.Remove(id)
	p.liveness.UnregisterNeighbor(id)
	observability.OutboundNeighbors.Set(float64(p.table.OutboundCount()))
	observability.InboundNeighbors.Set(float64(p.table.Len() - p.table.OutboundCount()))
}
