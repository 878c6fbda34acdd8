package dht

// TableBuckets is the number of buckets in a RoutingTable: one per
// possible LeadingSetBitIndex value of a 160-bit key.
const TableBuckets = KeyBits

// RoutingTable holds 160 XOR-distance-indexed buckets for one node's
// self key. The self key never appears in the table: its distance to
// itself is zero, so it has no LeadingSetBitIndex, and inserting it is
// a silent no-op.
type RoutingTable struct {
	self    Key
	buckets [TableBuckets]*bucket
}

// NewRoutingTable builds an empty table for the given self key.
func NewRoutingTable(self Key) *RoutingTable {
	rt := &RoutingTable{self: self}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket()
	}
	return rt
}

// indexFor returns the bucket index for a key relative to the table's
// self key, or (0, false) if the key has no bucket (i.e. it is self).
func (rt *RoutingTable) indexFor(key Key) (int, bool) {
	d, err := rt.self.Xor(key)
	if err != nil {
		return 0, false
	}
	return d.LeadingSetBitIndex()
}

// Insert adds p to the appropriate bucket, applying that bucket's
// replacement policy. Inserting self is a silent no-op.
func (rt *RoutingTable) Insert(p Peer) {
	idx, ok := rt.indexFor(p.Key)
	if !ok {
		return
	}
	rt.buckets[idx].insert(p)
}

// ClosestFor gathers up to BucketSize peers near target: it starts at
// the bucket target would occupy (falling back to bucket 0 if target
// equals self) and expands outward by +-1, +-2, ... accumulating each
// neighbouring bucket's peers until BucketSize are gathered or both
// directions are exhausted.
//
// The result is NOT sorted by XOR distance to target; callers that
// need distance order (IterativeLookup) must sort it themselves. This
// split of responsibility is deliberate: it matches the observable
// behaviour of the system this table was modeled on.
func (rt *RoutingTable) ClosestFor(target Key) []Peer {
	start, ok := rt.indexFor(target)
	if !ok {
		start = 0
	}

	out := make([]Peer, 0, BucketSize)
	out = append(out, rt.buckets[start].snapshot()...)

	for offset := 1; len(out) < BucketSize && (start-offset >= 0 || start+offset < TableBuckets); offset++ {
		if start-offset >= 0 {
			out = append(out, rt.buckets[start-offset].snapshot()...)
		}
		if len(out) >= BucketSize {
			break
		}
		if start+offset < TableBuckets {
			out = append(out, rt.buckets[start+offset].snapshot()...)
		}
	}

	if len(out) > BucketSize {
		out = out[:BucketSize]
	}
	return out
}

// PeerCount returns the total number of peers across all buckets.
func (rt *RoutingTable) PeerCount() int {
	n := 0
	for _, b := range rt.buckets {
		n += b.count()
	}
	return n
}

// BucketCount returns the number of peers in a single bucket, for
// observability and tests.
func (rt *RoutingTable) BucketCount(index int) int {
	if index < 0 || index >= TableBuckets {
		return 0
	}
	return rt.buckets[index].count()
}
