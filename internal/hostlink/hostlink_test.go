package hostlink

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/message"
	"github.com/hostclip/clipbridge/internal/wire"
)

type testHandler struct {
	announced chan clipfmt.HostFormat
	reads     chan clipfmt.HostFormat
	readData  []byte
	readErr   error
}

func newTestHandler() *testHandler {
	return &testHandler{
		announced: make(chan clipfmt.HostFormat, 4),
		reads:     make(chan clipfmt.HostFormat, 4),
	}
}

func (h *testHandler) HostAnnouncedFormats(f clipfmt.HostFormat) { h.announced <- f }

func (h *testHandler) HostRequestsRead(f clipfmt.HostFormat, respond func([]byte, error)) {
	h.reads <- f
	respond(h.readData, h.readErr)
}

// startLink brings up a Link against an in-test host service listener
// and returns the accepted host-side wire connection.
func startLink(t *testing.T, h Handler) (*Link, *wire.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	l, err := New(Config{Addr: ln.Addr().String(), Source: "guest-test", Version: "test"}, h)
	if err != nil {
		t.Fatal(err)
	}
	go l.Run()
	t.Cleanup(l.Close)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	wc := wire.New(conn, nil)

	// First message is the guest's hello.
	msg := readType(t, wc, message.TypeHello)
	if msg.Source != "guest-test" {
		t.Fatalf("hello source = %q", msg.Source)
	}
	return l, wc
}

// readType reads messages until one of the wanted type arrives,
// skipping keepalives.
func readType(t *testing.T, wc *wire.Conn, want message.Type) *message.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		wc.SetReadDeadline(time.Until(deadline))
		msg, err := wc.ReadMsg()
		if err != nil {
			t.Fatalf("reading %s: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
		if msg.Type == message.TypePing {
			_ = wc.WriteMsg(&message.Message{Type: message.TypePong})
			continue
		}
	}
	t.Fatalf("no %s message arrived", want)
	panic("unreachable")
}

func TestInboundFormats(t *testing.T) {
	h := newTestHandler()
	_, wc := startLink(t, h)

	if err := wc.WriteMsg(&message.Message{Type: message.TypeFormats, Formats: 1}); err != nil {
		t.Fatal(err)
	}
	select {
	case f := <-h.announced:
		if f != clipfmt.HostFormatText {
			t.Errorf("announced = %#x, want text", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("formats never reached the handler")
	}
}

func TestInboundReadRespondsWithData(t *testing.T) {
	h := newTestHandler()
	h.readData = []byte{0x68, 0x00, 0x00, 0x00}
	_, wc := startLink(t, h)

	if err := wc.WriteMsg(&message.Message{Type: message.TypeRead, ID: 77, Formats: 1}); err != nil {
		t.Fatal(err)
	}
	msg := readType(t, wc, message.TypeData)
	if msg.ID != 77 {
		t.Errorf("data id = %d, want 77", msg.ID)
	}
	if msg.Result != cliperr.CodeOK {
		t.Errorf("result = %q, want ok", msg.Result)
	}
	payload, err := msg.DecodePayload()
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != 4 {
		t.Errorf("payload = %v", payload)
	}
}

func TestInboundReadRespondsWithError(t *testing.T) {
	h := newTestHandler()
	h.readErr = cliperr.ErrTryAgain
	_, wc := startLink(t, h)

	if err := wc.WriteMsg(&message.Message{Type: message.TypeRead, ID: 5, Formats: 1}); err != nil {
		t.Fatal(err)
	}
	msg := readType(t, wc, message.TypeData)
	if got := cliperr.FromCode(msg.Result); !errors.Is(got, cliperr.ErrTryAgain) {
		t.Errorf("result = %q, want try-again", msg.Result)
	}
}

func TestReadHostRoundTrip(t *testing.T) {
	h := newTestHandler()
	l, wc := startLink(t, h)

	// Serve the host side: answer the READ with data.
	go answerReads(wc, func(id uint64) *message.Message {
		return &message.Message{
			Type:    message.TypeData,
			ID:      id,
			Result:  cliperr.CodeOK,
			Payload: message.NewPayload([]byte("payload")),
		}
	})

	waitConnected(t, l)
	data, err := l.ReadHost(clipfmt.HostFormatText)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q", data)
	}
}

func TestReadHostErrorCode(t *testing.T) {
	h := newTestHandler()
	l, wc := startLink(t, h)

	go answerReads(wc, func(id uint64) *message.Message {
		return &message.Message{
			Type:   message.TypeData,
			ID:     id,
			Result: cliperr.Code(cliperr.ErrNoData),
		}
	})

	waitConnected(t, l)
	if _, err := l.ReadHost(clipfmt.HostFormatText); !errors.Is(err, cliperr.ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestReadHostDisconnected(t *testing.T) {
	l, err := New(Config{Addr: "127.0.0.1:1", Source: "s"}, newTestHandler())
	if err != nil {
		t.Fatal(err)
	}
	// Never run: the link stays disconnected.
	if _, err := l.ReadHost(clipfmt.HostFormatText); !errors.Is(err, cliperr.ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

// answerReads serves the host side of one connection, replying to the
// first READ with the built message. Safe to run off the test
// goroutine: failures just close the connection.
func answerReads(wc *wire.Conn, build func(id uint64) *message.Message) {
	for {
		wc.SetReadDeadline(5 * time.Second)
		msg, err := wc.ReadMsg()
		if err != nil {
			return
		}
		switch msg.Type {
		case message.TypePing:
			_ = wc.WriteMsg(&message.Message{Type: message.TypePong})
		case message.TypeRead:
			_ = wc.WriteMsg(build(msg.ID))
			return
		}
	}
}

func waitConnected(t *testing.T, l *Link) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for l.State() != "connected" {
		if time.Now().After(deadline) {
			t.Fatal("link never connected")
		}
		time.Sleep(time.Millisecond)
	}
}
