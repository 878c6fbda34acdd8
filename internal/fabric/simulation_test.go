package fabric

import (
	"flag"
	"testing"
	"time"

	"dhtcore/internal/dht"
)

var (
	simNodes = flag.Int("sim.nodes", 60, "node count for the bootstrap/lookup simulation")
	simDrop  = flag.Float64("sim.drop", 0.05, "fraction of messages the simulated fabric drops")
	simSeed  = flag.Int64("sim.seed", 1, "seed for the simulated fabric's drop decisions")
)

// TestSimulation_RingBootstrapAndLookup builds simNodes nodes over a
// lossy MemoryFabric, bootstraps each off its predecessor, and checks
// that a lookup from one end of the chain can still find the other
// even with sim.drop fraction of messages disappearing in transit.
// This is the multi-node convergence scenario; run with -short to skip
// it entirely, or tune -sim.nodes/-sim.drop/-sim.seed for heavier runs.
func TestSimulation_RingBootstrapAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-node simulation in -short mode")
	}

	fab := NewMemoryFabric(*simSeed)
	fab.DropRate = *simDrop

	nodes := make([]*dht.Node, *simNodes)
	for i := range nodes {
		cfg := dht.DefaultNodeConfig(fab)
		cfg.CallTimeout = 500 * time.Millisecond
		n, err := dht.StartNode("10.42.0.1", i+1, cfg)
		if err != nil {
			t.Fatalf("StartNode %d: %v", i, err)
		}
		nodes[i] = n
	}

	for i := 1; i < len(nodes); i++ {
		if err := nodes[i].Bootstrap(nodes[i-1].Self()); err != nil {
			t.Fatalf("node %d bootstrap: %v", i, err)
		}
	}

	target := nodes[len(nodes)-1].Self().Key
	peers, err := nodes[0].Find(target)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for _, p := range peers {
		if p.Key.Equal(target) {
			return
		}
	}
	t.Fatalf("node 0 failed to discover the far end of a %d-node ring at drop rate %.2f (seed %d)",
		*simNodes, *simDrop, *simSeed)
}

// TestSimulation_SingleNodeBootstrapIsANoop checks that bootstrapping
// against no seeds and no PeerStore just runs a (trivially empty)
// self-lookup without error.
func TestSimulation_SingleNodeBootstrapIsANoop(t *testing.T) {
	fab := NewMemoryFabric(2)
	cfg := dht.DefaultNodeConfig(fab)
	n, err := dht.StartNode("10.42.1.1", 1, cfg)
	if err != nil {
		t.Fatalf("StartNode: %v", err)
	}
	if err := n.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap with no seeds: %v", err)
	}
	if n.Table().PeerCount() != 0 {
		t.Fatalf("expected an isolated node's table to stay empty, got %d", n.Table().PeerCount())
	}
}
