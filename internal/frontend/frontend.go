// Package frontend is the host-facing coordinator of the daemon. It
// implements bridge.Frontend, owning the host side of the clipboard:
// either a connected hostlink (the hypervisor service is the real
// clipboard) or, in standalone mode, a local buffer fed by the CLI
// tools over the IPC socket.
package frontend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hostclip/clipbridge/internal/bridge"
	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/hostlink"
	"github.com/hostclip/clipbridge/internal/hosttext"
	"github.com/hostclip/clipbridge/internal/message"
)

// tryAgainRetries is how often a paste retries a transfer that hit the
// one-in-flight gate before giving up.
const (
	tryAgainRetries = 10
	tryAgainDelay   = 100 * time.Millisecond
)

// Result is the completion of a data request issued on behalf of a CLI
// client; it travels through the bridge as the request cookie.
type Result struct {
	Data []byte
	Err  error
}

// Coordinator wires the bridge, the optional host link, and the IPC
// clients together.
type Coordinator struct {
	source   string
	version  string
	headless bool

	br   *bridge.Bridge
	link *hostlink.Link

	mu          sync.Mutex
	hostText    []byte // standalone host clipboard, host code-unit bytes
	hostFormats clipfmt.HostFormat
	x11Formats  clipfmt.HostFormat
}

// New creates a coordinator. Attach the bridge before starting it.
func New(source, version string, headless bool) *Coordinator {
	return &Coordinator{source: source, version: version, headless: headless}
}

// Attach hands the coordinator its bridge.
func (c *Coordinator) Attach(b *bridge.Bridge) { c.br = b }

// SetLink installs the host link; without one the coordinator runs
// standalone.
func (c *Coordinator) SetLink(l *hostlink.Link) { c.link = l }

func (c *Coordinator) linked() bool {
	return c.link != nil && c.link.State() == "connected"
}

// HostClipboardData implements bridge.Frontend: a synchronous fetch of
// the host clipboard, from the link when one is up, from the local
// buffer otherwise.
func (c *Coordinator) HostClipboardData(f bridge.Format) ([]byte, error) {
	if c.linked() {
		return c.link.ReadHost(f)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if f != bridge.FormatText || len(c.hostText) == 0 {
		return nil, cliperr.ErrNoData
	}
	return append([]byte(nil), c.hostText...), nil
}

// ReportFormats implements bridge.Frontend: the X11 side's offer is
// recorded for status and forwarded to the host.
func (c *Coordinator) ReportFormats(f bridge.Format) {
	c.mu.Lock()
	c.x11Formats = f
	c.mu.Unlock()
	slog.Debug("X11 clipboard formats changed", "formats", uint32(f))
	if c.link != nil {
		c.link.SendFormats(f)
	}
}

// CompleteRequest implements bridge.Frontend. The cookie identifies
// the requester: a Result channel for IPC clients, a completion
// callback for host link reads. The data is only valid during the
// call, so both paths copy it.
func (c *Coordinator) CompleteRequest(cookie any, data []byte, err error) {
	data = append([]byte(nil), data...)
	switch t := cookie.(type) {
	case chan Result:
		t <- Result{Data: data, Err: err}
	case func([]byte, error):
		t(data, err)
	default:
		slog.Error("completion with unknown cookie", "cookie", cookie)
	}
}

// HostAnnouncedFormats implements hostlink.Handler: the hypervisor
// declared new clipboard contents.
func (c *Coordinator) HostAnnouncedFormats(f clipfmt.HostFormat) {
	c.mu.Lock()
	c.hostFormats = f
	c.hostText = nil // the data lives on the host now
	c.mu.Unlock()
	c.br.AnnounceFormats(f)
}

// HostRequestsRead implements hostlink.Handler: the hypervisor wants
// X11 clipboard data.
func (c *Coordinator) HostRequestsRead(f clipfmt.HostFormat, respond func([]byte, error)) {
	if err := c.br.RequestData(f, respond); err != nil {
		respond(nil, err)
	}
}

// Copy places text on the host side of the bridge (standalone mode)
// and announces it to X11. Empty text clears the clipboard.
func (c *Coordinator) Copy(text string) error {
	units, err := hosttext.FromUTF8([]byte(text))
	if err != nil {
		return err
	}
	var f clipfmt.HostFormat
	if text != "" {
		f = bridge.FormatText
	}
	c.mu.Lock()
	c.hostText = hosttext.EncodeBytes(units)
	if text == "" {
		c.hostText = nil
	}
	c.hostFormats = f
	c.mu.Unlock()
	c.br.AnnounceFormats(f)
	return nil
}

// Paste fetches the X11 side's text through the bridge, retrying
// briefly when a transfer is already in flight.
func (c *Coordinator) Paste(ctx context.Context) (string, error) {
	for attempt := 0; ; attempt++ {
		ch := make(chan Result, 1)
		if err := c.br.RequestData(bridge.FormatText, ch); err != nil {
			return "", err
		}
		var res Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if errors.Is(res.Err, cliperr.ErrTryAgain) && attempt < tryAgainRetries {
			select {
			case <-time.After(tryAgainDelay):
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if res.Err != nil {
			return "", res.Err
		}
		units, err := hosttext.DecodeBytes(res.Data)
		if err != nil {
			return "", err
		}
		u8, err := hosttext.ToUTF8(units)
		if err != nil {
			return "", err
		}
		return string(u8[:len(u8)-1]), nil
	}
}

// Status snapshots the daemon state for the status CLI.
func (c *Coordinator) Status() *message.StatusInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := "standalone"
	if c.link != nil {
		state = c.link.State()
	}
	return &message.StatusInfo{
		Source:      c.source,
		Version:     c.version,
		Headless:    c.headless,
		HostLink:    state,
		HostFormats: uint32(c.hostFormats),
		X11Formats:  uint32(c.x11Formats),
	}
}
