// Package message defines the clipbridge wire protocol.
//
// All messages are newline-delimited JSON; binary payloads are
// base64-encoded so they are safe to embed in JSON strings. Each
// message is exactly one line: <json>\n.
//
// The same envelope serves two channels: the host link between the
// guest daemon and the hypervisor-side service (HELLO / FORMATS / READ
// / DATA / PING / PONG), and the local IPC socket the CLI tools use
// (COPY / PASTE / STATUS and their responses).
package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Type identifies the kind of message.
type Type string

const (
	// Host link.
	TypeHello   Type = "HELLO"
	TypeFormats Type = "FORMATS"
	TypeRead    Type = "READ"
	TypeData    Type = "DATA"
	TypePing    Type = "PING"
	TypePong    Type = "PONG"

	// Local IPC.
	TypeCopy           Type = "COPY"
	TypePaste          Type = "PASTE"
	TypeStatus         Type = "STATUS"
	TypeStatusResponse Type = "STATUS_RESPONSE"

	TypeError Type = "ERROR"
)

// StatusInfo is the daemon state reported to the status CLI.
type StatusInfo struct {
	Source      string `json:"source"`
	Version     string `json:"version"`
	Headless    bool   `json:"headless"`
	HostLink    string `json:"host_link"` // standalone | connecting | connected
	HostFormats uint32 `json:"host_formats"`
	X11Formats  uint32 `json:"x11_formats"`
}

// Message is the top-level wire envelope.
type Message struct {
	// Always present.
	Type Type `json:"type"`

	// HELLO — peer identification.
	Source  string `json:"source,omitempty"`
	Version string `json:"version,omitempty"`

	// FORMATS and READ — a host clipboard format bitmask.
	Formats uint32 `json:"formats,omitempty"`

	// READ and DATA — correlation token echoed in the completion.
	ID uint64 `json:"id,omitempty"`

	// DATA — result code ("ok", "no-data", "timeout", ...) and the
	// base64-encoded payload.
	Result  string `json:"result,omitempty"`
	Payload string `json:"payload,omitempty"`

	// STATUS_RESPONSE.
	Status *StatusInfo `json:"status,omitempty"`

	// ERROR.
	Error string `json:"error,omitempty"`
}

// NewPayload base64-encodes raw bytes for the Payload field.
func NewPayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePayload returns the raw bytes of the Payload field.
func (m *Message) DecodePayload() ([]byte, error) {
	if m.Payload == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload decode: %w", err)
	}
	return b, nil
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	return &m, nil
}
