package dht

import (
	"bytes"
	"sort"
	"sync"
	"time"
)

// LookupConfig tunes IterativeLookup. Alpha is the Kademlia concurrency
// parameter: the number of unqueried candidates dispatched per round.
// K bounds the shortlist size and matches BucketSize by default so a
// lookup converges on exactly what a single bucket could hold.
type LookupConfig struct {
	Alpha          int
	K              int
	PerCallTimeout time.Duration
}

// DefaultLookupConfig returns the standard Kademlia tuning: alpha 3,
// k equal to BucketSize.
func DefaultLookupConfig() LookupConfig {
	return LookupConfig{
		Alpha:          3,
		K:              BucketSize,
		PerCallTimeout: DefaultCallTimeout,
	}
}

type candidate struct {
	peer    Peer
	queried bool
}

// closerThan reports whether a is strictly closer to target than b.
func closerThan(a, b, target Key) bool {
	da, err := a.Xor(target)
	if err != nil {
		return false
	}
	db, err := b.Xor(target)
	if err != nil {
		return false
	}
	return bytes.Compare(da.Bytes(), db.Bytes()) < 0
}

// RunIterativeLookup performs an α-parallel FIND_NODE search for
// target, starting from n's own routing table. Each round dispatches
// FIND_NODE to up to cfg.Alpha unqueried candidates among the cfg.K
// closest known so far, merges whatever peers come back, and repeats.
// This terminates because every candidate is queried at most once and
// the shortlist is bounded at cfg.K: the round with no unqueried
// candidates left is always reached, unlike a scheme that only checks
// "did the closest distance improve" and can stall forever against a
// network that returns the same non-improving peers on every round.
func RunIterativeLookup(n *Node, target Key, cfg LookupConfig) ([]Peer, error) {
	if cfg.Alpha <= 0 {
		cfg.Alpha = 3
	}
	if cfg.K <= 0 {
		cfg.K = BucketSize
	}
	if cfg.PerCallTimeout <= 0 {
		cfg.PerCallTimeout = DefaultCallTimeout
	}

	seen := map[string]*candidate{}
	var shortlist []*candidate

	addCandidate := func(p Peer) {
		k := p.Key.String()
		if _, ok := seen[k]; ok {
			return
		}
		c := &candidate{peer: p}
		seen[k] = c
		shortlist = append(shortlist, c)
	}

	// Seed the shortlist with our own peer, already queried: we are
	// trivially "closest to ourselves" and never need a round trip to
	// find that out.
	self := &candidate{peer: n.self, queried: true}
	seen[n.self.Key.String()] = self
	shortlist = append(shortlist, self)

	for _, p := range n.table.ClosestFor(target) {
		addCandidate(p)
	}

	sortShortlist := func() {
		sort.Slice(shortlist, func(i, j int) bool {
			return closerThan(shortlist[i].peer.Key, shortlist[j].peer.Key, target)
		})
		if len(shortlist) > cfg.K {
			shortlist = shortlist[:cfg.K]
		}
	}
	sortShortlist()

	for {
		var batch []*candidate
		for _, c := range shortlist {
			if !c.queried {
				batch = append(batch, c)
			}
			if len(batch) == cfg.Alpha {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		var (
			wg      sync.WaitGroup
			resultsMu sync.Mutex
			results []Peer
		)
		for _, c := range batch {
			c.queried = true
			wg.Add(1)
			go func(c *candidate) {
				defer wg.Done()
				peers, err := n.findNode(c.peer, target, cfg.PerCallTimeout)
				if err != nil {
					return
				}
				resultsMu.Lock()
				results = append(results, peers...)
				resultsMu.Unlock()
			}(c)
		}
		wg.Wait()

		for _, p := range results {
			addCandidate(p)
		}
		sortShortlist()
	}

	out := make([]Peer, len(shortlist))
	for i, c := range shortlist {
		out[i] = c.peer
	}
	return out, nil
}
