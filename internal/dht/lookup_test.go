package dht

import (
	"sync"
	"testing"
	"time"
)

func TestIterativeLookup_ConvergesAcrossARing(t *testing.T) {
	const nodeCount = 12
	fab := newMemoryFabricForTest()
	nodes := make([]*Node, nodeCount)
	for i := 0; i < nodeCount; i++ {
		nodes[i] = newTestNode(t, fab, "10.1.0.1", i+1)
	}

	// Bootstrap each node off its predecessor so knowledge propagates
	// around the ring before anyone does a real lookup.
	for i := 1; i < nodeCount; i++ {
		if err := nodes[i].Bootstrap(nodes[i-1].Self()); err != nil {
			t.Fatalf("node %d bootstrap: %v", i, err)
		}
	}

	target := nodes[nodeCount-1].Self().Key
	peers, err := nodes[0].Find(target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for _, p := range peers {
		if p.Key.Equal(target) {
			return
		}
	}
	t.Fatalf("expected node 0's lookup to discover the target after a full ring bootstrap, got %d peers", len(peers))
}

func TestIterativeLookup_TerminatesWithNoPeers(t *testing.T) {
	fab := newMemoryFabricForTest()
	solo := newTestNode(t, fab, "10.2.0.1", 1)

	target, err := RandomKey(KeyBits)
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		peers, err := solo.Find(target)
		if err != nil {
			t.Errorf("Find: %v", err)
		}
		// An isolated node's routing table contributes no candidates, so
		// the only member of closest is the node's own peer, seeded and
		// already marked queried per the lookup's first step.
		if len(peers) != 1 || !peers[0].Key.Equal(solo.Self().Key) {
			t.Errorf("expected only self from an isolated node, got %v", peers)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("lookup with an empty routing table did not terminate")
	}
}

// delayingHandler holds a FindNodeRequest for a fixed delay before
// handling it, widening the window during which a concurrency bound
// violation would be observable.
type delayingHandler struct {
	inner Handler
	delay time.Duration
}

func (h delayingHandler) Handle(msg Message) {
	if msg.Kind() == KindFindNodeRequest {
		time.Sleep(h.delay)
	}
	h.inner.Handle(msg)
}

// concurrencyFabric wraps memoryFabricForTest and tracks, across every
// node registered on it, how many FIND_NODE requests are outstanding
// (sent but not yet answered) at once, recording the high-water mark.
type concurrencyFabric struct {
	*memoryFabricForTest
	mu       sync.Mutex
	inFlight int
	peak     int
}

func newConcurrencyFabric() *concurrencyFabric {
	return &concurrencyFabric{memoryFabricForTest: newMemoryFabricForTest()}
}

func (f *concurrencyFabric) Register(ip string, port int, h Handler) {
	f.memoryFabricForTest.Register(ip, port, delayingHandler{inner: h, delay: 20 * time.Millisecond})
}

func (f *concurrencyFabric) Send(ip string, port int, msg Message) error {
	switch msg.Kind() {
	case KindFindNodeRequest:
		f.mu.Lock()
		f.inFlight++
		if f.inFlight > f.peak {
			f.peak = f.inFlight
		}
		f.mu.Unlock()
	case KindFindNodeResponse:
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}
	return f.memoryFabricForTest.Send(ip, port, msg)
}

func TestIterativeLookup_RespectsAlphaConcurrency(t *testing.T) {
	const nodeCount = 6
	cfg := DefaultLookupConfig()
	cfg.Alpha = 2

	fab := newConcurrencyFabric()
	nodes := make([]*Node, nodeCount)
	for i := 0; i < nodeCount; i++ {
		nodes[i] = newTestNode(t, fab, "10.3.0.1", i+1)
		nodes[i].cfg.Lookup = cfg
	}

	// Bootstrap every other node off node 0, so node 0 ends up with a
	// shortlist wide enough for a real round at cfg.Alpha concurrency.
	for i := 1; i < nodeCount; i++ {
		if err := nodes[i].Bootstrap(nodes[0].Self()); err != nil {
			t.Fatalf("node %d bootstrap: %v", i, err)
		}
	}

	target, err := RandomKey(KeyBits)
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	if _, err := nodes[0].Find(target); err != nil {
		t.Fatalf("Find: %v", err)
	}

	fab.mu.Lock()
	peak := fab.peak
	fab.mu.Unlock()

	if peak == 0 {
		t.Fatalf("lookup never generated an in-flight findNode call, test is not exercising anything")
	}
	if peak > cfg.Alpha {
		t.Fatalf("observed %d concurrent FIND_NODE calls, want at most Alpha=%d", peak, cfg.Alpha)
	}
}
