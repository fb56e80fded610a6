package bridge

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/hostclip/clipbridge/internal/hosttext"
)

// The tests run the real event loop against a scripted connection, the
// way the original backend was tested against an emulated toolkit.

var fakeWinCounter atomic.Uint32

type fakeConvert struct {
	sel    xproto.Atom
	target xproto.Atom
}

type fakeReply struct {
	req    *ConvRequest
	typ    xproto.Atom
	format byte
	data   []byte
}

type fakeConn struct {
	win    xproto.Window
	events chan any

	mu        sync.Mutex
	atoms     map[string]xproto.Atom
	names     map[xproto.Atom]string
	nextAtom  xproto.Atom
	owned     map[xproto.Atom]bool
	watched   []xproto.Atom
	converts  []fakeConvert
	onConvert func(sel, target xproto.Atom)

	ownCh    chan xproto.Atom
	disownCh chan xproto.Atom
	replyCh  chan fakeReply
	refuseCh chan *ConvRequest
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		win:      xproto.Window(fakeWinCounter.Add(1)),
		events:   make(chan any, 16),
		atoms:    make(map[string]xproto.Atom),
		names:    make(map[xproto.Atom]string),
		nextAtom: 100,
		owned:    make(map[xproto.Atom]bool),
		ownCh:    make(chan xproto.Atom, 8),
		disownCh: make(chan xproto.Atom, 8),
		replyCh:  make(chan fakeReply, 8),
		refuseCh: make(chan *ConvRequest, 8),
	}
}

func (c *fakeConn) Window() xproto.Window { return c.win }

func (c *fakeConn) InternAtom(name string) (xproto.Atom, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.atoms[name]; ok {
		return a, nil
	}
	a := c.nextAtom
	c.nextAtom++
	c.atoms[name] = a
	c.names[a] = name
	return a, nil
}

func (c *fakeConn) AtomName(a xproto.Atom) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[a], nil
}

// atom is the test-side lookup; it interns like the bridge would.
func (c *fakeConn) atom(name string) xproto.Atom {
	a, _ := c.InternAtom(name)
	return a
}

func (c *fakeConn) WatchSelection(sel xproto.Atom) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watched = append(c.watched, sel)
	return nil
}

func (c *fakeConn) OwnSelection(sel xproto.Atom) error {
	c.mu.Lock()
	c.owned[sel] = true
	c.mu.Unlock()
	c.ownCh <- sel
	return nil
}

func (c *fakeConn) DisownSelection(sel xproto.Atom) error {
	c.mu.Lock()
	c.owned[sel] = false
	c.mu.Unlock()
	c.disownCh <- sel
	return nil
}

func (c *fakeConn) ConvertSelection(sel, target xproto.Atom) {
	c.mu.Lock()
	c.converts = append(c.converts, fakeConvert{sel, target})
	fn := c.onConvert
	c.mu.Unlock()
	if fn != nil {
		fn(sel, target)
	}
}

func (c *fakeConn) convertCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.converts)
}

func (c *fakeConn) isOwned(sel xproto.Atom) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owned[sel]
}

// respond installs the conversion script: when the bridge requests
// target, the scripted reply is delivered as if the owner answered.
func (c *fakeConn) respond(script func(sel, target xproto.Atom) *ConvReply) {
	c.mu.Lock()
	c.onConvert = func(sel, target xproto.Atom) {
		if r := script(sel, target); r != nil {
			c.events <- r
		}
	}
	c.mu.Unlock()
}

func (c *fakeConn) Reply(req *ConvRequest, typ xproto.Atom, format byte, data []byte) error {
	c.replyCh <- fakeReply{req: req, typ: typ, format: format, data: append([]byte(nil), data...)}
	return nil
}

func (c *fakeConn) Refuse(req *ConvRequest) error {
	c.refuseCh <- req
	return nil
}

func (c *fakeConn) Events() <-chan any { return c.events }

func (c *fakeConn) Close() error { return nil }

type completion struct {
	cookie any
	data   []byte
	err    error
}

type fakeFrontend struct {
	mu        sync.Mutex
	hostData  []byte
	hostErr   error
	hostCalls int

	formats     chan Format
	completions chan completion
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{
		formats:     make(chan Format, 8),
		completions: make(chan completion, 8),
	}
}

func (f *fakeFrontend) setHostText(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hostData = hosttext.EncodeBytes(utf16.Encode([]rune(s)))
	f.hostErr = nil
}

func (f *fakeFrontend) hostCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hostCalls
}

func (f *fakeFrontend) HostClipboardData(Format) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hostCalls++
	return f.hostData, f.hostErr
}

func (f *fakeFrontend) ReportFormats(fm Format) { f.formats <- fm }

func (f *fakeFrontend) CompleteRequest(cookie any, data []byte, err error) {
	f.completions <- completion{cookie: cookie, data: append([]byte(nil), data...), err: err}
}

// newTestBridge starts a bridge over a fresh fake connection with
// grab_on_start false and a deterministic Latin-1 locale.
func newTestBridge(t *testing.T) (*Bridge, *fakeConn, *fakeFrontend) {
	t.Helper()
	t.Setenv("LC_ALL", "C")
	fe := newFakeFrontend()
	fc := newFakeConn()
	b := New(fe, false)
	b.dial = func() (Conn, error) { return fc, nil }
	if err := b.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })
	return b, fc, fe
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(50 * time.Millisecond):
	}
}

// atomsLE packs atoms the way a TARGETS reply carries them.
func atomsLE(atoms ...xproto.Atom) []byte {
	out := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(a))
	}
	return out
}

func utf16LE(s string) []byte {
	return hosttext.EncodeBytes(utf16.Encode([]rune(s)))
}
