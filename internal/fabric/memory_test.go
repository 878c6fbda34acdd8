package fabric

import (
	"testing"
	"time"

	"dhtcore/internal/dht"
)

type recordingHandler struct {
	received chan dht.Message
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(chan dht.Message, 8)}
}

func (h *recordingHandler) Handle(msg dht.Message) {
	h.received <- msg
}

func TestMemoryFabric_DeliversRegisteredMessages(t *testing.T) {
	f := NewMemoryFabric(1)
	h := newRecordingHandler()
	f.Register("127.0.0.1", 9001, h)

	key, err := dht.RandomKey(dht.KeyBits)
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	sender := dht.NewPeer(key, "127.0.0.1", 9002)
	msg := dht.PingRequest{MsgID: "abc123", From: sender}

	if err := f.Send("127.0.0.1", 9001, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-h.received:
		if got.ID() != "abc123" {
			t.Fatalf("got id %q, want abc123", got.ID())
		}
	case <-time.After(time.Second):
		t.Fatalf("message was not delivered")
	}
}

func TestMemoryFabric_SendToUnknownAddressErrors(t *testing.T) {
	f := NewMemoryFabric(2)
	key, err := dht.RandomKey(dht.KeyBits)
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	msg := dht.PingRequest{MsgID: "x", From: dht.NewPeer(key, "127.0.0.1", 1)}

	if err := f.Send("127.0.0.1", 9999, msg); err == nil {
		t.Fatalf("expected an error sending to an unregistered address")
	}
}

func TestMemoryFabric_DropRateDropsSomeMessages(t *testing.T) {
	f := NewMemoryFabric(3)
	f.DropRate = 1.0
	h := newRecordingHandler()
	f.Register("127.0.0.1", 9001, h)

	key, err := dht.RandomKey(dht.KeyBits)
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	msg := dht.PingRequest{MsgID: "y", From: dht.NewPeer(key, "127.0.0.1", 9002)}

	if err := f.Send("127.0.0.1", 9001, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-h.received:
		t.Fatalf("expected the message to be dropped at DropRate=1.0")
	case <-time.After(100 * time.Millisecond):
	}
}
