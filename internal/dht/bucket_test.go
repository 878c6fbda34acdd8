package dht

import (
	"testing"
	"time"
)

func contactedTestPeer(t *testing.T, seed byte) Peer {
	t.Helper()
	data := make([]byte, KeySize)
	data[0] = seed
	k, err := NewKeyFromBytes(data)
	if err != nil {
		t.Fatalf("NewKeyFromBytes: %v", err)
	}
	return NewPeer(k, "127.0.0.1", 9000+int(seed)).Observed(time.Now())
}

func TestBucket_RejectsUncontacted(t *testing.T) {
	b := newBucket()
	k, _ := RandomKey(KeyBits)
	b.insert(NewPeer(k, "127.0.0.1", 1))
	if b.count() != 0 {
		t.Fatalf("uncontacted peer should not be inserted")
	}
}

func TestBucket_NoDuplicateKeys(t *testing.T) {
	b := newBucket()
	p := contactedTestPeer(t, 1)
	b.insert(p)
	b.insert(p)
	if b.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", b.count())
	}
}

func TestBucket_CapacityAndEviction(t *testing.T) {
	b := newBucket()
	for i := 0; i < BucketSize+5; i++ {
		b.insert(contactedTestPeer(t, byte(i)))
	}
	if b.count() != BucketSize {
		t.Fatalf("expected count capped at %d, got %d", BucketSize, b.count())
	}
	snap := b.snapshot()
	// Most recently inserted peer (last loop iteration) should be at front.
	last := contactedTestPeer(t, byte(BucketSize+4))
	if !snap[0].Equal(last) {
		t.Fatalf("expected most recent peer at front")
	}
}

func TestBucket_SnapshotIsDefensiveCopy(t *testing.T) {
	b := newBucket()
	b.insert(contactedTestPeer(t, 1))
	snap := b.snapshot()
	snap[0] = contactedTestPeer(t, 99)
	if b.snapshot()[0].Equal(snap[0]) {
		t.Fatalf("mutating snapshot should not affect bucket state")
	}
}
