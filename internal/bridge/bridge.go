// Package bridge connects a host-side virtual machine clipboard channel
// to the X Window System selection mechanism. One Bridge owns one X
// connection and a single event-loop goroutine; the host side talks to
// it through the Frontend interface and the exported methods, which may
// be called from any goroutine.
package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/sys/unix"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/ctext"
)

// wakeString is written to the wakeup pipe once per queued work item.
// The content is irrelevant; only its arrival matters.
const wakeString = "WakeUp!"

// How long Stop waits for the event loop to drain, in one-second steps.
const stopRetries = 300

// Bridge is the X11 backend of the shared clipboard.
type Bridge struct {
	fe      Frontend
	haveX11 bool

	// dial opens the X connection; tests substitute a fake.
	dial func() (Conn, error)

	conn    Conn
	atoms   *atomCache
	charset ctext.Charset

	wakeR, wakeW *os.File
	wake         chan struct{}
	done         chan struct{}
	drainDone    chan struct{}

	workMu    sync.Mutex
	work      []func()
	accepting bool

	// Everything below is owned by the event loop goroutine. Other
	// goroutines reach it only through queued work items.
	exit         bool
	grabOnStart  bool
	x11Text      clipfmt.Index
	x11Bitmap    clipfmt.Index
	hostFormats  Format
	unicodeCache []byte
	busy         bool
	updateNeeded bool
	pending      *dataRequest

	tableAtoms    []xproto.Atom // atom per clipfmt.Index
	selClipboard  xproto.Atom
	selPrimary    xproto.Atom
	atomTargets   xproto.Atom
	atomMultiple  xproto.Atom
	atomTimestamp xproto.Atom
}

// New allocates a bridge context for the given frontend. With headless
// set there is no X server to talk to: the context stays inert, every
// operation succeeds silently, and data requests complete with no data.
func New(fe Frontend, headless bool) *Bridge {
	b := &Bridge{fe: fe, haveX11: !headless}
	b.dial = func() (Conn, error) { return connectX() }
	if headless {
		slog.Info("no X11 display, clipboard bridge disabled")
	}
	return b
}

// Start connects to the X server and spawns the event loop. With grab
// set the bridge polls the current selection owner's targets at once
// instead of waiting for the first ownership change. On failure
// everything already set up is unwound and the error returned; an
// unreachable server or a missing XFixes extension reports
// cliperr.ErrNotSupported.
func (b *Bridge) Start(grab bool) error {
	if !b.haveX11 {
		return nil
	}
	if b.accepting {
		return fmt.Errorf("clipboard bridge already started")
	}

	conn, err := b.dial()
	if err != nil {
		return fmt.Errorf("connecting to X server: %w", err)
	}
	b.conn = conn
	b.atoms = newAtomCache(conn)

	if err := b.initAtoms(); err != nil {
		conn.Close()
		return err
	}
	if err := conn.WatchSelection(b.selClipboard); err != nil {
		conn.Close()
		return fmt.Errorf("selecting XFixes input: %w", err)
	}
	if err := registerContext(b); err != nil {
		conn.Close()
		return err
	}
	if err := b.initWakeupPipe(); err != nil {
		unregisterContext(b)
		conn.Close()
		return err
	}

	b.charset = ctext.SystemCharset()
	b.resetX11Formats()
	b.grabOnStart = grab
	b.done = make(chan struct{})
	b.accepting = true

	go b.drainWakeupPipe()
	go b.eventLoop()
	slog.Info("clipboard bridge started",
		"window", b.conn.Window(), "charset", b.charset.Name(), "grab", grab)
	return nil
}

func (b *Bridge) initAtoms() error {
	b.tableAtoms = make([]xproto.Atom, clipfmt.Count())
	for i := 1; i < clipfmt.Count(); i++ {
		idx := clipfmt.Index(i)
		a, err := b.conn.InternAtom(idx.Name())
		if err != nil {
			return fmt.Errorf("interning %q: %w", idx.Name(), err)
		}
		b.tableAtoms[i] = a
	}
	b.selClipboard = b.atoms.atom("CLIPBOARD")
	b.selPrimary = b.atoms.atom("PRIMARY")
	b.atomTargets = b.atoms.atom("TARGETS")
	b.atomMultiple = b.atoms.atom("MULTIPLE")
	b.atomTimestamp = b.atoms.atom("TIMESTAMP")
	if b.selClipboard == xproto.AtomNone || b.atomTargets == xproto.AtomNone {
		return fmt.Errorf("interning selection atoms: %w", cliperr.ErrUnresolved)
	}
	return nil
}

func (b *Bridge) initWakeupPipe() error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating wakeup pipe: %w", err)
	}
	// The read side must not block: the drain loop reads whatever is
	// there and the loop itself never touches the pipe.
	sc, err := r.SyscallConn()
	if err == nil {
		err = sc.Control(func(fd uintptr) {
			err = unix.SetNonblock(int(fd), true)
		})
	}
	if err != nil {
		r.Close()
		w.Close()
		return fmt.Errorf("wakeup pipe setup: %w", err)
	}
	b.wakeR, b.wakeW = r, w
	b.wake = make(chan struct{}, 1)
	b.drainDone = make(chan struct{})
	return nil
}

// drainWakeupPipe discards wakeup bytes and nudges the event loop. It
// exits when Stop closes the write end.
func (b *Bridge) drainWakeupPipe() {
	defer close(b.drainDone)
	buf := make([]byte, len(wakeString))
	for {
		if _, err := b.wakeR.Read(buf); err != nil {
			return
		}
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
}

// queueWork schedules fn on the event loop goroutine, in FIFO order,
// and wakes the loop through the pipe. Returns false once the bridge
// has stopped accepting work.
func (b *Bridge) queueWork(fn func()) bool {
	b.workMu.Lock()
	if !b.accepting {
		b.workMu.Unlock()
		return false
	}
	b.work = append(b.work, fn)
	b.workMu.Unlock()
	if _, err := b.wakeW.Write([]byte(wakeString)); err != nil {
		slog.Error("wakeup pipe write failed", "err", err)
	}
	return true
}

// Stop tears the bridge down: it queues a terminate item, waits for the
// event loop to drain (bounded, in one-second steps), and releases the
// connection and pipes. Calling Stop on a stopped or headless bridge is
// a no-op.
func (b *Bridge) Stop() error {
	if !b.haveX11 || !b.accepting {
		return nil
	}
	b.queueWork(func() { b.exit = true })

	stopped := false
	for i := 0; i < stopRetries && !stopped; i++ {
		select {
		case <-b.done:
			stopped = true
		case <-time.After(time.Second):
			slog.Warn("waiting for clipboard event loop to exit")
		}
	}

	b.workMu.Lock()
	b.accepting = false
	b.work = nil
	b.workMu.Unlock()

	unregisterContext(b)
	b.conn.Close()
	b.wakeW.Close()
	b.wakeR.Close()
	<-b.drainDone

	if !stopped {
		return fmt.Errorf("clipboard event loop did not exit: %w", cliperr.ErrTimeout)
	}
	slog.Info("clipboard bridge stopped")
	return nil
}

// AnnounceFormats declares the formats the host clipboard now holds.
// A non-empty mask grabs the CLIPBOARD and PRIMARY selections; an empty
// one releases them. The unicode cache is invalidated either way.
func (b *Bridge) AnnounceFormats(f Format) {
	if !b.haveX11 {
		return
	}
	b.queueWork(func() { b.announceWorker(f) })
}

func (b *Bridge) announceWorker(f Format) {
	b.unicodeCache = nil
	if f != 0 {
		if err := b.conn.OwnSelection(b.selClipboard); err != nil {
			slog.Error("grabbing CLIPBOARD failed", "err", err)
		} else {
			b.hostFormats = f
			// Grab the middle-button paste selection too.
			if err := b.conn.OwnSelection(b.selPrimary); err != nil {
				slog.Warn("grabbing PRIMARY failed", "err", err)
			}
		}
	} else {
		b.hostFormats = 0
		if err := b.conn.DisownSelection(b.selClipboard); err != nil {
			slog.Warn("releasing CLIPBOARD failed", "err", err)
		}
		if err := b.conn.DisownSelection(b.selPrimary); err != nil {
			slog.Warn("releasing PRIMARY failed", "err", err)
		}
	}
	b.resetX11Formats()
}

// RequestData asks the X11 side for its clipboard contents in format f.
// It returns immediately; the result arrives through the frontend's
// CompleteRequest with the same cookie. While another transfer is in
// flight the completion reports cliperr.ErrTryAgain.
func (b *Bridge) RequestData(f Format, cookie any) error {
	if !b.haveX11 {
		b.fe.CompleteRequest(cookie, nil, cliperr.ErrNoData)
		return nil
	}
	if !b.queueWork(func() { b.readWorker(f, cookie) }) {
		b.fe.CompleteRequest(cookie, nil, cliperr.ErrNoData)
	}
	return nil
}
