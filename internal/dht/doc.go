// Package dht implements the core of a Kademlia-style distributed hash
// table node: 160-bit keys with XOR distance, a k-bucket routing table,
// the iterative find-node lookup, and the Node actor that binds them to
// a pluggable transport.
//
// Value storage, republishing, NAT traversal and liveness-probed
// eviction are intentionally not implemented here; see the fabric and
// peerstore packages for the external collaborators this package
// depends on.
package dht
