package peerstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"dhtcore/internal/dht"
)

const (
	bucketPeers = "peers"
	openTimeout = 2 * time.Second
)

// boltRecord is the JSON-encoded value stored per peer key.
type boltRecord struct {
	IP          string    `json:"ip"`
	Port        int       `json:"port"`
	LastSuccess time.Time `json:"last_success"`
	Failures    int       `json:"failures"`
}

// Bolt is a dht.PeerStore backed by a single BoltDB file, so a node
// remembers bootstrap candidates across restarts the same way the
// teacher's grantsbolt.Store remembers quiz grants.
type Bolt struct {
	db  *bolt.DB
	key *EncryptionKey
}

// OpenBolt opens (creating if absent) a BoltDB database at path. key
// may be nil to store records as plain JSON.
func OpenBolt(path string, key *EncryptionKey) (*Bolt, error) {
	if path == "" {
		return nil, fmt.Errorf("peerstore: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketPeers))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db, key: key}, nil
}

func (s *Bolt) Close() error { return s.db.Close() }

func (s *Bolt) readRecord(b *bolt.Bucket, key []byte) (boltRecord, bool) {
	var rec boltRecord
	raw := b.Get(key)
	if raw == nil {
		return rec, false
	}
	plain, err := open(s.key, raw)
	if err != nil {
		return rec, false
	}
	if json.Unmarshal(plain, &rec) != nil {
		return rec, false
	}
	return rec, true
}

func (s *Bolt) writeRecord(b *bolt.Bucket, key []byte, rec boltRecord) error {
	plain, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	val, err := seal(s.key, plain)
	if err != nil {
		return err
	}
	return b.Put(key, val)
}

func (s *Bolt) NoteSuccess(key dht.Key, ip string, port int) {
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPeers))
		rec := boltRecord{IP: ip, Port: port, LastSuccess: time.Now()}
		return s.writeRecord(b, []byte(key.String()), rec)
	})
}

func (s *Bolt) NoteFailure(key dht.Key) {
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPeers))
		rec, ok := s.readRecord(b, []byte(key.String()))
		if !ok {
			return nil
		}
		rec.Failures++
		return s.writeRecord(b, []byte(key.String()), rec)
	})
}

func (s *Bolt) Candidates(maxFailures, limit int) []dht.Peer {
	type scored struct {
		key dht.Key
		rec boltRecord
	}
	var all []scored

	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPeers))
		return b.ForEach(func(k, v []byte) error {
			plain, err := open(s.key, v)
			if err != nil {
				return nil
			}
			var rec boltRecord
			if err := json.Unmarshal(plain, &rec); err != nil {
				return nil
			}
			if rec.Failures > maxFailures {
				return nil
			}
			key, err := dht.ParseKey(string(k))
			if err != nil {
				return nil
			}
			all = append(all, scored{key: key, rec: rec})
			return nil
		})
	})

	sort.Slice(all, func(i, j int) bool {
		return all[i].rec.LastSuccess.After(all[j].rec.LastSuccess)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]dht.Peer, len(all))
	for i, s := range all {
		out[i] = dht.NewPeer(s.key, s.rec.IP, s.rec.Port)
	}
	return out
}

var _ dht.PeerStore = (*Bolt)(nil)
var _ dht.PeerStore = (*Memory)(nil)
