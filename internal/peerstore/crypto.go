package peerstore

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptionKey is a 32-byte symmetric key protecting a Bolt store's
// records at rest. A nil key (the default) leaves records as plain
// JSON; operators who persist the store on shared or removable media
// can supply one to get confidentiality for free.
type EncryptionKey [32]byte

func seal(key *EncryptionKey, plaintext []byte) ([]byte, error) {
	if key == nil {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key *EncryptionKey, data []byte) ([]byte, error) {
	if key == nil {
		return data, nil
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	if len(data) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("peerstore: encrypted record too short")
	}
	nonce, ct := data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, nil)
}
