package dht

import (
	"fmt"
	"sync"
	"time"

	"dhtcore/internal/telemetry"
)

// Rate-limiting constants for inbound traffic. A Node accepts at most
// rlBurst messages instantly from a single peer, refilling at rlRate
// per second thereafter. Tuned generously above what an honest,
// α-parallel lookup would ever generate against one recipient.
const (
	rlRate  = 40.0
	rlBurst = 80.0
	rlCost  = 1.0
)

// DefaultCallTimeout bounds how long a Node waits for a single request
// to be answered before treating the peer as unreachable.
const DefaultCallTimeout = 2 * time.Second

// NodeConfig supplies a Node its collaborators. Fabric is the only
// required field; Logger and PeerStore are optional, matching the
// teacher's convention of a Config struct with a documented minimal
// default.
type NodeConfig struct {
	Fabric      Fabric
	PeerStore   PeerStore
	Logger      telemetry.Logger
	CallTimeout time.Duration
	Lookup      LookupConfig
}

// DefaultNodeConfig returns a NodeConfig for fab with Logger,
// CallTimeout and Lookup filled in; PeerStore is left nil.
func DefaultNodeConfig(fab Fabric) NodeConfig {
	return NodeConfig{
		Fabric:      fab,
		Logger:      telemetry.NoopLogger{},
		CallTimeout: DefaultCallTimeout,
		Lookup:      DefaultLookupConfig(),
	}
}

type pendingCall struct {
	kind Kind
	ch   chan Message
}

// Node is the actor that owns one RoutingTable and a table of
// in-flight calls. Every exported method is safe for concurrent use;
// internally that safety comes from a mutex guarding the pending-call
// table (the teacher's dht.DHT.pendingMu/pending pattern) plus
// RoutingTable's own locking, not from a single-goroutine mailbox.
type Node struct {
	cfg  NodeConfig
	self Peer

	table *RoutingTable

	pendingMu sync.Mutex
	pending   map[string]pendingCall

	rlMu sync.Mutex
	rl   map[string]*tokenBucket
}

// StartNode creates a Node with a fresh random identity at ip:port and
// registers it with cfg.Fabric so it can begin receiving messages. It
// does not dial anyone; call Bootstrap for that.
func StartNode(ip string, port int, cfg NodeConfig) (*Node, error) {
	if cfg.Fabric == nil {
		return nil, fmt.Errorf("dht: NodeConfig.Fabric is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NoopLogger{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	key, err := RandomKey(KeyBits)
	if err != nil {
		return nil, err
	}
	n := &Node{
		cfg:     cfg,
		self:    NewPeer(key, ip, port),
		table:   NewRoutingTable(key),
		pending: make(map[string]pendingCall),
		rl:      make(map[string]*tokenBucket),
	}
	n.cfg.Fabric.Register(ip, port, n)
	return n, nil
}

// Self returns the node's own peer descriptor.
func (n *Node) Self() Peer { return n.self }

// Table exposes the routing table for observability (peer counts,
// bucket occupancy) and for tests. Nothing outside this package is
// expected to mutate it directly.
func (n *Node) Table() *RoutingTable { return n.table }

func (n *Node) allow(sourceKey string) bool {
	n.rlMu.Lock()
	defer n.rlMu.Unlock()
	b, ok := n.rl[sourceKey]
	if !ok {
		b = &tokenBucket{}
		n.rl[sourceKey] = b
	}
	return b.allow(time.Now(), rlRate, rlBurst, rlCost)
}

// send is fire-and-forget: it deep-copies msg so the Fabric (and
// whatever eventually reads off it) can never observe a later mutation
// made by this goroutine, then hands it to the transport. Errors are
// logged, not returned, matching spec.md's "do not propagate Fabric
// delivery failures back through send".
func (n *Node) send(to Peer, msg Message) {
	cp, err := CopyMessage(msg)
	if err != nil {
		n.cfg.Logger.Printf("dht: encode %s to %s:%d failed: %v", msg.Kind(), to.IP, to.Port, err)
		return
	}
	if err := n.cfg.Fabric.Send(to.IP, to.Port, cp); err != nil {
		n.cfg.Logger.Printf("dht: send %s to %s:%d failed: %v", msg.Kind(), to.IP, to.Port, err)
	}
}

// call sends req to peer and blocks until a message of expectedKind
// carrying req's id arrives, timeout elapses, or the send itself
// fails. The waiter is registered in the pending table before the
// message is handed to the Fabric, and that register-then-send
// sequence holds pendingMu throughout so no response can arrive and be
// dropped for lack of a waiter.
func (n *Node) call(to Peer, req Message, expectedKind Kind, timeout time.Duration) (Message, error) {
	ch := make(chan Message, 1)

	cp, err := CopyMessage(req)
	if err != nil {
		return nil, err
	}

	n.pendingMu.Lock()
	n.pending[req.ID()] = pendingCall{kind: expectedKind, ch: ch}
	sendErr := n.cfg.Fabric.Send(to.IP, to.Port, cp)
	if sendErr != nil {
		delete(n.pending, req.ID())
	}
	n.pendingMu.Unlock()

	if sendErr != nil {
		return nil, sendErr
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		n.pendingMu.Lock()
		delete(n.pending, req.ID())
		n.pendingMu.Unlock()
		return nil, ErrCallTimeout
	}
}

// Ping calls peer with a PingRequest and reports whether it answered
// within cfg.CallTimeout.
func (n *Node) Ping(peer Peer) (Peer, error) {
	req := PingRequest{MsgID: NewMessageID(), From: n.self}
	resp, err := n.call(peer, req, KindPingResponse, n.cfg.CallTimeout)
	if err != nil {
		return Peer{}, err
	}
	return resp.Source(), nil
}

// findNode calls peer with a FindNodeRequest for target and returns
// the peers it reports as closest. timeout overrides cfg.CallTimeout
// so a lookup can apply its own LookupConfig.PerCallTimeout.
func (n *Node) findNode(peer Peer, target Key, timeout time.Duration) ([]Peer, error) {
	req := FindNodeRequest{MsgID: NewMessageID(), From: n.self, Target: target}
	resp, err := n.call(peer, req, KindFindNodeResponse, timeout)
	if err != nil {
		return nil, err
	}
	fnr, ok := resp.(FindNodeResponse)
	if !ok {
		return nil, ErrUnexpectedResponse
	}
	return fnr.Nodes, nil
}

// Bootstrap pings every seed peer, inserts the ones that answer into
// the routing table, and then runs a self-lookup to populate the table
// from their perspective too. If seeds is empty and a PeerStore was
// configured, previously-seen candidates are dialed instead — the
// "cold start from disk" path.
func (n *Node) Bootstrap(seeds ...Peer) error {
	if len(seeds) == 0 && n.cfg.PeerStore != nil {
		seeds = n.cfg.PeerStore.Candidates(5, 20)
	}

	var wg sync.WaitGroup
	for _, seed := range seeds {
		wg.Add(1)
		go func(seed Peer) {
			defer wg.Done()
			observed, err := n.Ping(seed)
			if err != nil {
				n.cfg.Logger.Printf("dht: bootstrap peer %s:%d unreachable: %v", seed.IP, seed.Port, err)
				if n.cfg.PeerStore != nil {
					n.cfg.PeerStore.NoteFailure(seed.Key)
				}
				return
			}
			contacted := observed.Observed(time.Now())
			n.table.Insert(contacted)
			if n.cfg.PeerStore != nil {
				n.cfg.PeerStore.NoteSuccess(contacted.Key, contacted.IP, contacted.Port)
			}
		}(seed)
	}
	wg.Wait()

	_, err := n.Find(n.self.Key)
	return err
}

// Find runs an iterative lookup for target and returns the closest
// peers this node could discover, nearest first.
func (n *Node) Find(target Key) ([]Peer, error) {
	return RunIterativeLookup(n, target, n.cfg.Lookup)
}

// Handle is the inbound entrypoint the Fabric delivers every message
// to. It runs, in order: rate limiting, the learning handler (mark the
// sender contacted and fold it and any peers it carries into the
// routing table), the per-kind request handler, and finally
// pending-call resolution. A message could both trigger a request
// handler and resolve a pending call only if a waiter expected a
// request Kind, which never happens: every call waits for a response
// Kind, and requests and responses use disjoint Kind values.
func (n *Node) Handle(msg Message) {
	if !n.allow(msg.Source().Key.String()) {
		return
	}

	now := time.Now()
	n.table.Insert(msg.Source().Observed(now))
	if cp, ok := msg.(carriesPeers); ok {
		for _, p := range cp.CarriedPeers() {
			// Intentionally inert: p arrives with no last_contact state,
			// and the bucket replacement policy only ever accepts a peer
			// that has answered us directly, so this Insert is rejected
			// every time. Do not "fix" this into a direct table entry;
			// a peer earns a slot by being dialed and pinged, never by a
			// third party's say-so.
			n.table.Insert(p)
		}
	}

	switch m := msg.(type) {
	case PingRequest:
		n.send(m.Source(), PingResponse{MsgID: m.ID(), From: n.self})
	case FindNodeRequest:
		closest := n.table.ClosestFor(m.Target)
		n.send(m.Source(), FindNodeResponse{MsgID: m.ID(), From: n.self, Nodes: closest})
	}

	n.pendingMu.Lock()
	waiter, ok := n.pending[msg.ID()]
	if ok && waiter.kind == msg.Kind() {
		delete(n.pending, msg.ID())
	} else {
		ok = false
	}
	n.pendingMu.Unlock()
	if ok {
		select {
		case waiter.ch <- msg:
		default:
		}
	}
}
