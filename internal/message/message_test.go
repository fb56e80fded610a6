package message

import (
	"bytes"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	in := &Message{
		Type:    TypeData,
		ID:      42,
		Result:  "ok",
		Payload: NewPayload([]byte{0x68, 0x00, 0x69, 0x00}),
	}
	raw, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.ContainsRune(raw, '\n') {
		t.Error("encoded message contains a newline")
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != TypeData || out.ID != 42 || out.Result != "ok" {
		t.Errorf("decoded = %+v", out)
	}
	payload, err := out.DecodePayload()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, []byte{0x68, 0x00, 0x69, 0x00}) {
		t.Errorf("payload = %v", payload)
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	m := &Message{Type: TypeData}
	b, err := m.DecodePayload()
	if err != nil || b != nil {
		t.Errorf("empty payload = %v, %v", b, err)
	}
}

func TestDecodePayloadInvalid(t *testing.T) {
	m := &Message{Type: TypeData, Payload: "!!not base64!!"}
	if _, err := m.DecodePayload(); err == nil {
		t.Error("invalid base64 should error")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("{nope")); err == nil {
		t.Error("garbage JSON should error")
	}
}
