package dht

import "time"

// Peer is a (key, address) pair plus an optional last-contact
// timestamp. Two peers with equal Key are the same routing entry
// regardless of address; addresses are updated in place when a peer
// is re-observed at a new address.
type Peer struct {
	Key  Key
	IP   string
	Port int

	// lastContact is nil until the peer has been observed: a message
	// received from it, or a successful response to a call.
	lastContact *time.Time
}

// NewPeer builds an unobserved Peer (Contacted reports false).
func NewPeer(key Key, ip string, port int) Peer {
	return Peer{Key: key, IP: ip, Port: port}
}

// Contacted reports whether this peer has ever been observed.
func (p Peer) Contacted() bool {
	return p.lastContact != nil
}

// LastContact returns the last-observed time and whether it is set.
func (p Peer) LastContact() (time.Time, bool) {
	if p.lastContact == nil {
		return time.Time{}, false
	}
	return *p.lastContact, true
}

// Observed returns a copy of p marked as contacted at t.
func (p Peer) Observed(t time.Time) Peer {
	p.lastContact = &t
	return p
}

// Equal reports whether two peers refer to the same routing entry
// (equal Key), ignoring address and contact time.
func (p Peer) Equal(other Peer) bool {
	return p.Key.Equal(other.Key)
}
