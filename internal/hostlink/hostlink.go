// Package hostlink maintains the connection between the guest daemon
// and the hypervisor-side clipboard service.
//
// The link speaks the newline-delimited JSON protocol from
// internal/message over TCP or a Unix socket, optionally secretbox
// encrypted (shared token) or wrapped in opportunistic TLS. It
// reconnects with exponential back-off; while disconnected, outbound
// traffic is dropped and reads fail with no data.
package hostlink

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/crypto"
	"github.com/hostclip/clipbridge/internal/message"
	"github.com/hostclip/clipbridge/internal/tlsconf"
	"github.com/hostclip/clipbridge/internal/wire"
)

const (
	reconnectDelay = time.Second
	maxReconnect   = 30 * time.Second
	readTimeout    = 10 * time.Second
	pingInterval   = 15 * time.Second
)

// Handler receives inbound host traffic.
type Handler interface {
	// HostAnnouncedFormats is called when the host declares the
	// clipboard formats it now holds.
	HostAnnouncedFormats(f clipfmt.HostFormat)

	// HostRequestsRead is called when the host asks for X11 clipboard
	// data. respond must be called exactly once with the outcome.
	HostRequestsRead(f clipfmt.HostFormat, respond func(data []byte, err error))
}

// Config describes how to reach the host service.
type Config struct {
	Addr    string // host:port, or a unix socket path prefixed "unix:"
	Token   string // secretbox token; empty disables encryption
	UseTLS  bool
	Source  string
	Version string
}

// Link is the persistent host connection.
type Link struct {
	cfg Config
	h   Handler
	key *[32]byte

	mu      sync.Mutex
	conn    *wire.Conn
	state   string // connecting | connected
	nextID  uint64
	pending map[uint64]chan *message.Message

	done      chan struct{}
	closeOnce sync.Once
}

// New prepares a link; Run starts it.
func New(cfg Config, h Handler) (*Link, error) {
	l := &Link{
		cfg:     cfg,
		h:       h,
		state:   "connecting",
		pending: make(map[uint64]chan *message.Message),
		done:    make(chan struct{}),
	}
	if cfg.Token != "" && !cfg.UseTLS {
		key, err := crypto.DeriveKey(cfg.Token)
		if err != nil {
			return nil, err
		}
		l.key = key
	}
	return l, nil
}

// State reports "connected" or "connecting".
func (l *Link) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Close tears the link down and stops the reconnect loop.
func (l *Link) Close() {
	l.closeOnce.Do(func() { close(l.done) })
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
}

// Run dials the host service and serves the connection, reconnecting
// with jittered exponential back-off until Close.
func (l *Link) Run() {
	delay := reconnectDelay
	for {
		select {
		case <-l.done:
			return
		default:
		}

		conn, err := l.dialOnce()
		if err != nil {
			slog.Warn("host link dial failed", "addr", l.cfg.Addr, "err", err, "retry_in", delay)
			select {
			case <-l.done:
				return
			case <-time.After(delay + time.Duration(rand.Int63n(int64(delay/4+1)))):
			}
			if delay *= 2; delay > maxReconnect {
				delay = maxReconnect
			}
			continue
		}
		delay = reconnectDelay

		slog.Info("host link established", "addr", l.cfg.Addr)
		l.serve(conn)
		l.setDisconnected()
		slog.Warn("host link lost", "addr", l.cfg.Addr)
	}
}

func (l *Link) dialOnce() (*wire.Conn, error) {
	network, addr := "tcp", l.cfg.Addr
	if strings.HasPrefix(addr, "unix:") {
		network, addr = "unix", strings.TrimPrefix(addr, "unix:")
	}

	var raw net.Conn
	var err error
	if l.cfg.UseTLS {
		pass := l.cfg.Token
		if pass == "" {
			pass = tlsconf.DefaultPassphrase
		}
		tc, cerr := tlsconf.ClientConfig(pass)
		if cerr != nil {
			return nil, cerr
		}
		raw, err = tls.Dial(network, addr, tc)
	} else {
		raw, err = net.DialTimeout(network, addr, 5*time.Second)
	}
	if err != nil {
		return nil, err
	}

	conn := wire.New(raw, l.key)
	hello := &message.Message{Type: message.TypeHello, Source: l.cfg.Source, Version: l.cfg.Version}
	if err := conn.WriteMsg(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.state = "connected"
	l.mu.Unlock()
	return conn, nil
}

func (l *Link) setDisconnected() {
	l.mu.Lock()
	l.conn = nil
	l.state = "connecting"
	pending := l.pending
	l.pending = make(map[uint64]chan *message.Message)
	l.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// serve runs the read loop and keepalives until the connection fails.
func (l *Link) serve(conn *wire.Conn) {
	defer conn.Close()

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-t.C:
				l.send(&message.Message{Type: message.TypePing})
			}
		}
	}()

	for {
		msg, err := conn.ReadMsg()
		if err != nil {
			return
		}
		switch msg.Type {
		case message.TypeHello:
			slog.Info("host service hello", "source", msg.Source, "version", msg.Version)
		case message.TypeFormats:
			l.h.HostAnnouncedFormats(clipfmt.HostFormat(msg.Formats))
		case message.TypeRead:
			id := msg.ID
			l.h.HostRequestsRead(clipfmt.HostFormat(msg.Formats), func(data []byte, err error) {
				l.send(&message.Message{
					Type:    message.TypeData,
					ID:      id,
					Result:  cliperr.Code(err),
					Payload: message.NewPayload(data),
				})
			})
		case message.TypeData:
			l.mu.Lock()
			ch := l.pending[msg.ID]
			delete(l.pending, msg.ID)
			l.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		case message.TypePing:
			l.send(&message.Message{Type: message.TypePong})
		case message.TypePong:
		case message.TypeError:
			slog.Warn("host service error", "err", msg.Error)
		default:
			slog.Debug("unexpected host message", "type", msg.Type)
		}
	}
}

// send writes best-effort; a write failure surfaces through the read
// loop shortly after.
func (l *Link) send(msg *message.Message) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMsg(msg); err != nil {
		slog.Debug("host link write failed", "type", msg.Type, "err", err)
	}
}

// SendFormats announces the X11 side's formats to the host.
func (l *Link) SendFormats(f clipfmt.HostFormat) {
	l.send(&message.Message{Type: message.TypeFormats, Formats: uint32(f)})
}

// ReadHost fetches the host clipboard in format f: one READ out, the
// matching DATA back. Called synchronously from the bridge's event
// loop, exactly like the original host service round-trip.
func (l *Link) ReadHost(f clipfmt.HostFormat) ([]byte, error) {
	l.mu.Lock()
	if l.conn == nil {
		l.mu.Unlock()
		return nil, cliperr.ErrNoData
	}
	l.nextID++
	id := l.nextID
	ch := make(chan *message.Message, 1)
	l.pending[id] = ch
	l.mu.Unlock()

	l.send(&message.Message{Type: message.TypeRead, ID: id, Formats: uint32(f)})

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, cliperr.ErrNoData
		}
		if err := cliperr.FromCode(msg.Result); err != nil {
			return nil, err
		}
		return msg.DecodePayload()
	case <-time.After(readTimeout):
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
		return nil, cliperr.ErrTimeout
	case <-l.done:
		return nil, cliperr.ErrNoData
	}
}
