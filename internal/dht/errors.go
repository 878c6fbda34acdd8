package dht

import "errors"

// ErrSizeMismatch is returned when XORing two keys of different sizes.
var ErrSizeMismatch = errors.New("dht: key size mismatch")

// ErrInvalidKeySize is returned when constructing a random key whose
// bit count is not a multiple of 8.
var ErrInvalidKeySize = errors.New("dht: key size must be a multiple of 8 bits")

// ErrCallTimeout is returned by Node.call when an RPC exceeds its
// deadline. It is never fatal: bootstrap skips the peer and lookup
// marks it queried with no contribution.
var ErrCallTimeout = errors.New("dht: call timed out")

// ErrUnknownPeer is returned (possibly wrapped) by a Fabric's Send when
// no node is registered at the target endpoint; Node.call passes it on
// to its caller, while Node.send only logs it.
var ErrUnknownPeer = errors.New("dht: unknown or unreachable peer")

// ErrUnexpectedResponse is returned by findNode when the message that
// resolved its call is not a FindNodeResponse value. A message whose
// kind differs from the expected one never resolves a pending call; the
// call then ends with ErrCallTimeout.
var ErrUnexpectedResponse = errors.New("dht: unexpected response kind")
