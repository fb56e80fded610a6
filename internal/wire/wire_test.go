package wire

import (
	"net"
	"testing"

	"github.com/hostclip/clipbridge/internal/crypto"
	"github.com/hostclip/clipbridge/internal/message"
)

func pipePair(key *[32]byte) (*Conn, *Conn) {
	a, b := net.Pipe()
	return New(a, key), New(b, key)
}

func roundTrip(t *testing.T, key *[32]byte) {
	t.Helper()
	a, b := pipePair(key)
	defer a.Close()
	defer b.Close()

	in := &message.Message{Type: message.TypeRead, ID: 9, Formats: 1}
	errCh := make(chan error, 1)
	go func() { errCh <- a.WriteMsg(in) }()

	out, err := b.ReadMsg()
	if err != nil {
		t.Fatalf("ReadMsg: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteMsg: %v", err)
	}
	if out.Type != in.Type || out.ID != in.ID || out.Formats != in.Formats {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestPlainRoundTrip(t *testing.T) {
	roundTrip(t, nil)
}

func TestEncryptedRoundTrip(t *testing.T) {
	key, err := crypto.DeriveKey("token")
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, key)
}

func TestKeyMismatchFails(t *testing.T) {
	k1, _ := crypto.DeriveKey("one")
	k2, _ := crypto.DeriveKey("two")
	a, b := net.Pipe()
	ca, cb := New(a, k1), New(b, k2)
	defer ca.Close()
	defer cb.Close()

	go func() { _ = ca.WriteMsg(&message.Message{Type: message.TypePing}) }()
	if _, err := cb.ReadMsg(); err == nil {
		t.Error("mismatched keys should fail to read")
	}
}

func TestPlaintextReaderRejectsCiphertext(t *testing.T) {
	key, _ := crypto.DeriveKey("token")
	a, b := net.Pipe()
	ca, cb := New(a, key), New(b, nil)
	defer ca.Close()
	defer cb.Close()

	go func() { _ = ca.WriteMsg(&message.Message{Type: message.TypePing}) }()
	if _, err := cb.ReadMsg(); err == nil {
		t.Error("ciphertext should not parse as a plain message")
	}
}
