// Package fabric provides concrete dht.Fabric implementations: an
// in-process MemoryFabric for tests and simulation, grounded on the
// teacher's internal/dht/sim network, and a TCPFabric for real
// networking, grounded on its internal/netx + internal/crypto/noiseconn
// stack.
package fabric

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dhtcore/internal/dht"
)

type endpoint struct {
	ip   string
	port int
}

func (e endpoint) String() string { return fmt.Sprintf("%s:%d", e.ip, e.port) }

// MemoryFabric is an in-process, not-production transport for testing
// and simulation. Like the real thing it models, delivery is
// asynchronous (each Send hands off to its own goroutine) and may be
// lossy: DropRate is the probability, in [0,1], that any given message
// never arrives. Latency adds a fixed delay before delivery.
type MemoryFabric struct {
	mu       sync.RWMutex
	handlers map[endpoint]dht.Handler

	rngMu sync.Mutex
	rng   *rand.Rand

	DropRate float64
	Latency  time.Duration
}

// NewMemoryFabric returns a MemoryFabric seeded for reproducible
// simulation runs.
func NewMemoryFabric(seed int64) *MemoryFabric {
	return &MemoryFabric{
		handlers: make(map[endpoint]dht.Handler),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (f *MemoryFabric) Register(ip string, port int, h dht.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[endpoint{ip, port}] = h
}

func (f *MemoryFabric) Send(ip string, port int, msg dht.Message) error {
	f.mu.RLock()
	h, ok := f.handlers[endpoint{ip, port}]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("fabric: no node registered at %s:%d: %w", ip, port, dht.ErrUnknownPeer)
	}

	cp, err := dht.CopyMessage(msg)
	if err != nil {
		return err
	}

	if f.DropRate > 0 {
		f.rngMu.Lock()
		drop := f.rng.Float64() < f.DropRate
		f.rngMu.Unlock()
		if drop {
			return nil
		}
	}

	go func() {
		if f.Latency > 0 {
			time.Sleep(f.Latency)
		}
		h.Handle(cp)
	}()
	return nil
}
