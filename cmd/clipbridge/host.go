package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/crypto"
	"github.com/hostclip/clipbridge/internal/hosttext"
	"github.com/hostclip/clipbridge/internal/message"
	"github.com/hostclip/clipbridge/internal/tlsconf"
	"github.com/hostclip/clipbridge/internal/wire"
)

func newHostCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a host-side clipboard service stub",
		Long: `Runs a stand-in for the hypervisor-side clipboard service, for
end-to-end testing across machines. Guests connect with
"clipbridge serve --host-addr".

The listener multiplexes two protocols on one port: the clipboard wire
protocol for guests, and HTTP for humans —

  GET  /statusz   current state as JSON
  POST /copy      place the request body on the host clipboard
  GET  /paste     fetch the guest's X11 clipboard text`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runHost(v) },
	}

	f := cmd.Flags()
	f.String("addr", "0.0.0.0:8753", "TCP listen address")
	f.String("token", "", "shared secret (empty = no encryption)")
	f.Bool("tls", false, "serve TLS (self-signed, passphrase-verified)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runHost(v *viper.Viper) error {
	setupLogging(v)

	token := v.GetString("token")
	useTLS := v.GetBool("tls")

	var key *[32]byte
	if token != "" && !useTLS {
		var err error
		if key, err = crypto.DeriveKey(token); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", v.GetString("addr"))
	if err != nil {
		return fmt.Errorf("listen %s: %w", v.GetString("addr"), err)
	}
	if useTLS {
		pass := token
		if pass == "" {
			pass = tlsconf.DefaultPassphrase
		}
		cfg, err := tlsconf.ServerConfig(pass)
		if err != nil {
			return err
		}
		ln = tls.NewListener(ln, cfg)
	}
	slog.Info("host service listening", "addr", ln.Addr(), "tls", useTLS, "encrypted", key != nil)

	svc := newHostService(key)

	m := cmux.New(ln)
	httpLn := m.Match(cmux.HTTP1Fast())
	wireLn := m.Match(cmux.Any())

	go func() {
		srv := &http.Server{Handler: svc.httpHandler()}
		if err := srv.Serve(httpLn); err != nil {
			slog.Debug("http server exited", "err", err)
		}
	}()
	go svc.serve(wireLn)

	return m.Serve()
}

// hostService is the stub's state: one host clipboard buffer plus the
// formats the connected guests' X11 side last reported.
type hostService struct {
	key *[32]byte

	mu           sync.Mutex
	hostText     string // host clipboard (plain text)
	guestFormats clipfmt.HostFormat
	guests       map[*wire.Conn]struct{}
	nextID       uint64
	pending      map[uint64]chan *message.Message
}

func newHostService(key *[32]byte) *hostService {
	return &hostService{
		key:     key,
		guests:  make(map[*wire.Conn]struct{}),
		pending: make(map[uint64]chan *message.Message),
	}
}

func (s *hostService) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.serveGuest(wire.New(conn, s.key))
	}
}

func (s *hostService) serveGuest(wc *wire.Conn) {
	log := slog.With("guest", wc.RemoteAddr())
	s.mu.Lock()
	s.guests[wc] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.guests, wc)
		s.mu.Unlock()
		wc.Close()
		log.Info("guest disconnected")
	}()

	if err := wc.WriteMsg(&message.Message{Type: message.TypeHello, Source: "host", Version: Version}); err != nil {
		return
	}

	for {
		msg, err := wc.ReadMsg()
		if err != nil {
			return
		}
		switch msg.Type {
		case message.TypeHello:
			log.Info("guest connected", "source", msg.Source, "version", msg.Version)
			// Let a late-joining guest see the current host clipboard.
			s.mu.Lock()
			text := s.hostText
			s.mu.Unlock()
			if text != "" {
				s.send(wc, &message.Message{Type: message.TypeFormats, Formats: uint32(clipfmt.HostFormatText)})
			}
		case message.TypeFormats:
			s.mu.Lock()
			s.guestFormats = clipfmt.HostFormat(msg.Formats)
			s.mu.Unlock()
			log.Info("guest clipboard formats", "formats", msg.Formats)
		case message.TypeRead:
			s.send(wc, s.answerRead(msg))
		case message.TypeData:
			s.mu.Lock()
			ch := s.pending[msg.ID]
			delete(s.pending, msg.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		case message.TypePing:
			s.send(wc, &message.Message{Type: message.TypePong})
		case message.TypePong:
		default:
			log.Debug("unexpected guest message", "type", msg.Type)
		}
	}
}

func (s *hostService) send(wc *wire.Conn, msg *message.Message) {
	if err := wc.WriteMsg(msg); err != nil {
		slog.Debug("guest write failed", "err", err)
	}
}

// answerRead serves the guest's READ of the host clipboard, in host
// code-unit bytes.
func (s *hostService) answerRead(msg *message.Message) *message.Message {
	s.mu.Lock()
	text := s.hostText
	s.mu.Unlock()

	reply := &message.Message{Type: message.TypeData, ID: msg.ID}
	if clipfmt.HostFormat(msg.Formats) != clipfmt.HostFormatText {
		reply.Result = cliperr.Code(cliperr.ErrNotImplemented)
		return reply
	}
	if text == "" {
		reply.Result = cliperr.Code(cliperr.ErrNoData)
		return reply
	}
	units, err := hosttext.FromUTF8([]byte(text))
	if err != nil {
		reply.Result = cliperr.Code(err)
		return reply
	}
	reply.Result = cliperr.CodeOK
	reply.Payload = message.NewPayload(hosttext.EncodeBytes(units))
	return reply
}

// copyText places text on the host clipboard and announces it to every
// connected guest.
func (s *hostService) copyText(text string) {
	s.mu.Lock()
	s.hostText = text
	guests := make([]*wire.Conn, 0, len(s.guests))
	for wc := range s.guests {
		guests = append(guests, wc)
	}
	s.mu.Unlock()

	var f clipfmt.HostFormat
	if text != "" {
		f = clipfmt.HostFormatText
	}
	for _, wc := range guests {
		s.send(wc, &message.Message{Type: message.TypeFormats, Formats: uint32(f)})
	}
}

// pasteFromGuest reads the X11 clipboard of one connected guest; with
// several connected, which one is not defined.
func (s *hostService) pasteFromGuest() (string, error) {
	s.mu.Lock()
	var target *wire.Conn
	for wc := range s.guests {
		target = wc
		break
	}
	if target == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("no guest connected")
	}
	s.nextID++
	id := s.nextID
	ch := make(chan *message.Message, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	s.send(target, &message.Message{Type: message.TypeRead, ID: id, Formats: uint32(clipfmt.HostFormatText)})

	var msg *message.Message
	select {
	case msg = <-ch:
	case <-time.After(15 * time.Second):
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return "", cliperr.ErrTimeout
	}
	if err := cliperr.FromCode(msg.Result); err != nil {
		return "", err
	}
	raw, err := msg.DecodePayload()
	if err != nil {
		return "", err
	}
	units, err := hosttext.DecodeBytes(raw)
	if err != nil {
		return "", err
	}
	u8, err := hosttext.ToUTF8(units)
	if err != nil {
		return "", err
	}
	return string(u8[:len(u8)-1]), nil
}

func (s *hostService) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /statusz", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		state := map[string]any{
			"guests":        len(s.guests),
			"guest_formats": uint32(s.guestFormats),
			"host_text_len": len(s.hostText),
		}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state)
	})
	mux.HandleFunc("POST /copy", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, wire.MaxMessageSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.copyText(string(body))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /paste", func(w http.ResponseWriter, _ *http.Request) {
		text, err := s.pasteFromGuest()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, text)
	})
	return mux
}
