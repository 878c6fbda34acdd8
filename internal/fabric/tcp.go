package fabric

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/flynn/noise"

	"dhtcore/internal/crypto/noiseconn"
	"dhtcore/internal/dht"
	"dhtcore/internal/netx"
	"dhtcore/internal/telemetry"
)

// maxFrameSize generously bounds a single encoded message: a
// FindNodeResponse carrying BucketSize peers fits comfortably inside
// this with room to spare.
const maxFrameSize = 64 * 1024

// TCPFabric is a real dht.Fabric backed by TCP and secured with a
// Noise_XX handshake per connection, the same primitives the teacher
// uses for its peer-to-peer sessions (internal/netx, internal/crypto
// /noiseconn), simplified here to a dial-handshake-send-close cycle per
// message rather than a long-lived session, since Fabric.Send is
// already a one-shot, fire-and-forget operation.
type TCPFabric struct {
	net    netx.Network
	logger telemetry.Logger

	staticPriv []byte
	staticPub  []byte

	mu      sync.RWMutex
	handler dht.Handler
	bindIP  string
	bindPort int
}

// NewTCPFabric binds a listener at bindAddr and starts accepting
// inbound connections. Call Register once to wire the local node's
// Handler before any message can be delivered.
func NewTCPFabric(bindAddr string, logger telemetry.Logger) (*TCPFabric, error) {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	keypair, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("fabric: generating static keypair: %w", err)
	}

	nw := netx.NewTCPNetwork()
	if _, err := nw.Listen(bindAddr); err != nil {
		return nil, fmt.Errorf("fabric: listen %s: %w", bindAddr, err)
	}

	f := &TCPFabric{
		net:        nw,
		logger:     logger,
		staticPriv: keypair.Private,
		staticPub:  keypair.Public,
	}
	go f.acceptLoop()
	return f, nil
}

func (f *TCPFabric) acceptLoop() {
	for {
		conn, err := f.net.Accept()
		if err != nil {
			return
		}
		go f.serveInbound(conn)
	}
}

func (f *TCPFabric) serveInbound(conn netx.Conn) {
	defer conn.Close()

	secure, err := noiseconn.NewSecureServer(conn, f.staticPriv, f.staticPub)
	if err != nil {
		f.logger.Printf("fabric: handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	buf := make([]byte, maxFrameSize)
	n, err := secure.Read(buf)
	if err != nil {
		f.logger.Printf("fabric: read from %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	msg, err := dht.DecodeMessage(buf[:n])
	if err != nil {
		f.logger.Printf("fabric: decode from %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	f.mu.RLock()
	h := f.handler
	f.mu.RUnlock()
	if h == nil {
		return
	}
	h.Handle(msg)
}

// Register records the local node's Handler. ip/port are expected to
// match the address TCPFabric was bound at; they are stored but not
// otherwise used, since a single TCPFabric instance serves one node.
func (f *TCPFabric) Register(ip string, port int, h dht.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.bindIP, f.bindPort = ip, port
}

// Send encodes msg and hands the dial, Noise_XX handshake, and write
// off to a goroutine, returning immediately. Delivery is best-effort
// and asynchronous, matching MemoryFabric.Send: a dial or handshake
// failure is logged and the message is simply lost, which is within
// the UnknownEndpoint-as-loss contract the rest of the system already
// tolerates. Only encode-time errors (a bad message, or one too large
// for maxFrameSize) are returned synchronously, since neither blocks on
// the network.
func (f *TCPFabric) Send(ip string, port int, msg dht.Message) error {
	addr := netx.Addr(fmt.Sprintf("%s:%d", ip, port))

	data, err := dht.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("fabric: encoded message too large (%d bytes)", len(data))
	}

	go f.deliver(addr, data)
	return nil
}

// deliver performs the actual dial-handshake-write-close cycle. It
// runs off the caller's goroutine so Send never blocks, and so a Node
// holding pendingMu across call() never holds it across network I/O.
func (f *TCPFabric) deliver(addr netx.Addr, data []byte) {
	conn, err := f.net.Dial(addr)
	if err != nil {
		f.logger.Printf("fabric: dial %s failed: %v", addr, err)
		return
	}
	defer conn.Close()

	secure, err := noiseconn.NewSecureClient(conn, f.staticPriv, f.staticPub)
	if err != nil {
		f.logger.Printf("fabric: handshake with %s failed: %v", addr, err)
		return
	}
	if _, err := secure.Write(data); err != nil {
		f.logger.Printf("fabric: write to %s failed: %v", addr, err)
	}
}

// Close stops accepting new connections.
func (f *TCPFabric) Close() error {
	return f.net.Close()
}
