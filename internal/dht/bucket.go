package dht

import "sync"

// BucketSize is the Kademlia k constant: the maximum number of peers
// a single bucket holds.
const BucketSize = 20

// bucket is a bounded, recency-ordered list of contacted peers.
// Position 0 is the most recently observed peer. It is safe for
// concurrent use.
type bucket struct {
	mu    sync.Mutex
	peers []Peer // index 0 = most recent
}

func newBucket() *bucket {
	return &bucket{peers: make([]Peer, 0, BucketSize)}
}

// insert applies the bucket's replacement policy:
//   - peers that have never been contacted are rejected;
//   - a peer already present (by Key) is left untouched (no
//     move-to-front, per the simplified policy this table preserves);
//   - otherwise the peer is prepended, evicting the oldest (tail)
//     entry first if the bucket is already full.
//
// Eviction here never probes the evicted peer for liveness; that is a
// deliberate simplification relative to canonical Kademlia.
func (b *bucket) insert(p Peer) {
	if !p.Contacted() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.peers {
		if existing.Equal(p) {
			return
		}
	}

	if len(b.peers) >= BucketSize {
		b.peers = b.peers[:len(b.peers)-1]
	}
	b.peers = append([]Peer{p}, b.peers...)
}

// snapshot returns a defensive copy of the bucket's contents,
// most-recent first.
func (b *bucket) snapshot() []Peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Peer, len(b.peers))
	copy(out, b.peers)
	return out
}

// count returns the number of peers currently in the bucket.
func (b *bucket) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}
