package dht

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Kind identifies the shape of a Message.
type Kind string

const (
	KindPingRequest      Kind = "PING_REQUEST"
	KindPingResponse     Kind = "PING_RESPONSE"
	KindFindNodeRequest  Kind = "FIND_NODE_REQUEST"
	KindFindNodeResponse Kind = "FIND_NODE_RESPONSE"
)

// Message is the supertype of every request and response that crosses
// the Fabric. Every message carries an opaque correlation id and the
// sender's Peer descriptor.
type Message interface {
	Kind() Kind
	ID() string
	Source() Peer
}

// carriesPeers is implemented by messages that ship a peer list
// (currently only FindNodeResponse). The learning handler inserts
// every peer a message carries, not just its source.
type carriesPeers interface {
	CarriedPeers() []Peer
}

// NewMessageID returns a random opaque correlation token (12 hex
// characters, i.e. 6 random bytes), matching the wire shape in
// spec.md's external interfaces section.
func NewMessageID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// PingRequest asks the recipient to confirm liveness.
type PingRequest struct {
	MsgID string
	From  Peer
}

func (m PingRequest) Kind() Kind  { return KindPingRequest }
func (m PingRequest) ID() string  { return m.MsgID }
func (m PingRequest) Source() Peer { return m.From }

// PingResponse answers a PingRequest with the same id.
type PingResponse struct {
	MsgID string
	From  Peer
}

func (m PingResponse) Kind() Kind   { return KindPingResponse }
func (m PingResponse) ID() string   { return m.MsgID }
func (m PingResponse) Source() Peer { return m.From }

// FindNodeRequest asks the recipient for its closest-known peers to
// Target.
type FindNodeRequest struct {
	MsgID  string
	From   Peer
	Target Key
}

func (m FindNodeRequest) Kind() Kind   { return KindFindNodeRequest }
func (m FindNodeRequest) ID() string   { return m.MsgID }
func (m FindNodeRequest) Source() Peer { return m.From }

// FindNodeResponse carries the responder's closest-known peers.
type FindNodeResponse struct {
	MsgID string
	From  Peer
	Nodes []Peer
}

func (m FindNodeResponse) Kind() Kind            { return KindFindNodeResponse }
func (m FindNodeResponse) ID() string            { return m.MsgID }
func (m FindNodeResponse) Source() Peer          { return m.From }
func (m FindNodeResponse) CarriedPeers() []Peer  { return m.Nodes }

// wirePeer is the flat, JSON-friendly shape of a Peer on the wire.
type wirePeer struct {
	Key  string `json:"key"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

func toWirePeer(p Peer) wirePeer {
	return wirePeer{Key: p.Key.String(), IP: p.IP, Port: p.Port}
}

func (wp wirePeer) toPeer() (Peer, error) {
	k, err := ParseKey(wp.Key)
	if err != nil {
		return Peer{}, err
	}
	return NewPeer(k, wp.IP, wp.Port), nil
}

// wireMessage is the single flat payload every Message kind encodes
// to, mirroring how the teacher's transport frames DHT traffic.
type wireMessage struct {
	Kind   Kind       `json:"kind"`
	ID     string     `json:"id"`
	Source wirePeer   `json:"source"`
	Target string     `json:"target,omitempty"`
	Peers  []wirePeer `json:"peers,omitempty"`
}

// EncodeMessage serializes m to its wire form. Fabric implementations
// use this (rather than passing Message values directly) to guarantee
// the deep-copy contract: the receiver can never observe sender-side
// mutation of a message it was handed.
func EncodeMessage(m Message) ([]byte, error) {
	w := wireMessage{
		Kind:   m.Kind(),
		ID:     m.ID(),
		Source: toWirePeer(m.Source()),
	}
	switch v := m.(type) {
	case FindNodeRequest:
		w.Target = v.Target.String()
	case FindNodeResponse:
		w.Peers = make([]wirePeer, len(v.Nodes))
		for i, p := range v.Nodes {
			w.Peers[i] = toWirePeer(p)
		}
	}
	return json.Marshal(w)
}

// DecodeMessage parses a wire payload produced by EncodeMessage back
// into a concrete Message value.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	source, err := w.Source.toPeer()
	if err != nil {
		return nil, err
	}

	switch w.Kind {
	case KindPingRequest:
		return PingRequest{MsgID: w.ID, From: source}, nil
	case KindPingResponse:
		return PingResponse{MsgID: w.ID, From: source}, nil
	case KindFindNodeRequest:
		target, err := ParseKey(w.Target)
		if err != nil {
			return nil, err
		}
		return FindNodeRequest{MsgID: w.ID, From: source, Target: target}, nil
	case KindFindNodeResponse:
		nodes := make([]Peer, 0, len(w.Peers))
		for _, wp := range w.Peers {
			p, err := wp.toPeer()
			if err != nil {
				continue
			}
			nodes = append(nodes, p)
		}
		return FindNodeResponse{MsgID: w.ID, From: source, Nodes: nodes}, nil
	default:
		return nil, fmt.Errorf("dht: unknown message kind %q", w.Kind)
	}
}

// CopyMessage returns a value equal to m but sharing no mutable state
// with it, by round-tripping through the wire encoding. This is the
// concrete form of the "serialize-then-deserialize" message-identity
// contract from spec.md.
func CopyMessage(m Message) (Message, error) {
	data, err := EncodeMessage(m)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(data)
}
