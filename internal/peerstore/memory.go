// Package peerstore provides dht.PeerStore implementations a Node
// consults for bootstrap candidates across restarts: an in-memory one
// for tests and short-lived nodes, and a BoltDB-backed one (grounded on
// the teacher's internal/storage/grantsbolt) for anything that should
// remember peers after a process restart.
package peerstore

import (
	"sort"
	"sync"
	"time"

	"dhtcore/internal/dht"
)

type record struct {
	ip          string
	port        int
	lastSuccess time.Time
	failures    int
}

// Memory is a process-lifetime dht.PeerStore backed by a plain map.
// Restarting the process forgets everything it knew.
type Memory struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewMemory returns an empty in-memory PeerStore.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*record)}
}

func (m *Memory) NoteSuccess(key dht.Key, ip string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key.String()]
	if !ok {
		r = &record{}
		m.records[key.String()] = r
	}
	r.ip, r.port = ip, port
	r.lastSuccess = time.Now()
	r.failures = 0
}

func (m *Memory) NoteFailure(key dht.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key.String()]
	if !ok {
		return
	}
	r.failures++
}

func (m *Memory) Candidates(maxFailures, limit int) []dht.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	type scored struct {
		key dht.Key
		r   *record
	}
	var all []scored
	for ks, r := range m.records {
		if r.failures > maxFailures {
			continue
		}
		key, err := dht.ParseKey(ks)
		if err != nil {
			continue
		}
		all = append(all, scored{key: key, r: r})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].r.lastSuccess.After(all[j].r.lastSuccess)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]dht.Peer, len(all))
	for i, s := range all {
		out[i] = dht.NewPeer(s.key, s.r.ip, s.r.port)
	}
	return out
}
