package bridge

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/hostclip/clipbridge/internal/cliperr"
)

// convertTimeout bounds how long a selection owner gets to answer a
// conversion, matching the Xt selection timeout default.
const convertTimeout = 5 * time.Second

// selProperty is the property conversion replies are delivered through.
const selProperty = "_CLIPBRIDGE_SEL"

// xConn implements Conn on a real X server via xgb.
type xConn struct {
	conn   *xgb.Conn
	win    xproto.Window
	events chan any

	propSel  xproto.Atom
	atomIncr xproto.Atom

	mu   sync.Mutex
	conv *pendingConv
}

// pendingConv tracks the single outstanding ConvertSelection, its
// timeout timer, and INCR reassembly state.
type pendingConv struct {
	target xproto.Atom
	timer  *time.Timer
	incr   bool
	typ    xproto.Atom
	buf    []byte
}

// connectX opens the display named by DISPLAY, negotiates XFixes, and
// creates the invisible selection client window. XFixes absence maps to
// cliperr.ErrNotSupported: without owner-change events the bridge
// would have to poll.
func connectX() (Conn, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, cliperr.ErrNotSupported)
	}
	if err := xfixes.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("XFixes init: %v: %w", err, cliperr.ErrNotSupported)
	}
	if _, err := xfixes.QueryVersion(conn, 5, 0).Reply(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("XFixes version: %v: %w", err, cliperr.ErrNotSupported)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	win, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	// A 1x1 window that is never mapped; it exists to own selections
	// and receive selection events.
	err = xproto.CreateWindowChecked(conn,
		screen.RootDepth, win, screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating selection window: %w", err)
	}

	c := &xConn{
		conn:   conn,
		win:    win,
		events: make(chan any, 16),
	}
	if c.propSel, err = c.InternAtom(selProperty); err != nil {
		conn.Close()
		return nil, err
	}
	if c.atomIncr, err = c.InternAtom("INCR"); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readEvents()
	return c, nil
}

func (c *xConn) Window() xproto.Window { return c.win }

func (c *xConn) InternAtom(name string) (xproto.Atom, error) {
	r, err := xproto.InternAtom(c.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return xproto.AtomNone, fmt.Errorf("interning %q: %w", name, err)
	}
	return r.Atom, nil
}

func (c *xConn) AtomName(a xproto.Atom) (string, error) {
	r, err := xproto.GetAtomName(c.conn, a).Reply()
	if err != nil {
		return "", err
	}
	return r.Name, nil
}

func (c *xConn) WatchSelection(sel xproto.Atom) error {
	const mask = xfixes.SelectionEventMaskSetSelectionOwner |
		xfixes.SelectionEventMaskSelectionWindowDestroy |
		xfixes.SelectionEventMaskSelectionClientClose
	err := xfixes.SelectSelectionInputChecked(c.conn, c.win, sel, mask).Check()
	if err != nil {
		return fmt.Errorf("%v: %w", err, cliperr.ErrNotSupported)
	}
	return nil
}

func (c *xConn) OwnSelection(sel xproto.Atom) error {
	return xproto.SetSelectionOwnerChecked(c.conn, c.win, sel, xproto.TimeCurrentTime).Check()
}

func (c *xConn) DisownSelection(sel xproto.Atom) error {
	return xproto.SetSelectionOwnerChecked(c.conn, xproto.WindowNone, sel, xproto.TimeCurrentTime).Check()
}

func (c *xConn) ConvertSelection(sel, target xproto.Atom) {
	pc := &pendingConv{target: target}
	pc.timer = time.AfterFunc(convertTimeout, func() { c.convTimedOut(pc) })
	c.mu.Lock()
	c.conv = pc
	c.mu.Unlock()
	xproto.ConvertSelection(c.conn, c.win, sel, target, c.propSel, xproto.TimeCurrentTime)
}

func (c *xConn) convTimedOut(pc *pendingConv) {
	c.mu.Lock()
	if c.conv != pc {
		c.mu.Unlock()
		return
	}
	c.conv = nil
	c.mu.Unlock()
	c.events <- &ConvReply{Target: pc.target, Type: TypeConvertFail}
}

// finishConv resolves the outstanding conversion, if pc still is it.
func (c *xConn) finishConv(pc *pendingConv, reply *ConvReply) {
	c.mu.Lock()
	if c.conv != pc {
		c.mu.Unlock()
		return
	}
	c.conv = nil
	c.mu.Unlock()
	pc.timer.Stop()
	c.events <- reply
}

func (c *xConn) Reply(req *ConvRequest, typ xproto.Atom, format byte, data []byte) error {
	prop := req.Property
	if prop == xproto.AtomNone {
		// Obsolete requestors leave the property unset; ICCCM says to
		// use the target in that case.
		prop = req.Target
	}
	units := len(data) / (int(format) / 8)
	err := xproto.ChangePropertyChecked(c.conn, xproto.PropModeReplace,
		req.Requestor, prop, typ, format, uint32(units), data).Check()
	if err != nil {
		return fmt.Errorf("writing selection property: %w", err)
	}
	return c.notify(req, prop)
}

func (c *xConn) Refuse(req *ConvRequest) error {
	return c.notify(req, xproto.AtomNone)
}

func (c *xConn) notify(req *ConvRequest, prop xproto.Atom) error {
	ev := xproto.SelectionNotifyEvent{
		Time:      req.Time,
		Requestor: req.Requestor,
		Selection: req.Selection,
		Target:    req.Target,
		Property:  prop,
	}
	return xproto.SendEventChecked(c.conn, false, req.Requestor,
		xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}

func (c *xConn) Events() <-chan any { return c.events }

func (c *xConn) Close() error {
	// Disarm any in-flight conversion timer so it cannot deliver a reply
	// after the connection is closed.
	c.mu.Lock()
	if c.conv != nil {
		c.conv.timer.Stop()
		c.conv = nil
	}
	c.mu.Unlock()
	c.conn.Close()
	return nil
}

// readEvents translates the raw X stream into bridge events. It runs
// until the connection closes, then delivers a final *ConnClosed event.
func (c *xConn) readEvents() {
	defer func() { c.events <- &ConnClosed{} }()
	for {
		ev, xerr := c.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			slog.Debug("X error", "err", xerr)
			continue
		}
		switch e := ev.(type) {
		case xfixes.SelectionNotifyEvent:
			owner := e.Owner
			if e.Subtype != xfixes.SelectionEventSetSelectionOwner {
				owner = xproto.WindowNone
			}
			c.events <- &OwnerChange{Selection: e.Selection, Owner: owner}
		case xproto.SelectionRequestEvent:
			c.events <- &ConvRequest{
				Requestor: e.Requestor,
				Selection: e.Selection,
				Target:    e.Target,
				Property:  e.Property,
				Time:      e.Time,
			}
		case xproto.SelectionNotifyEvent:
			c.onSelectionNotify(&e)
		case xproto.PropertyNotifyEvent:
			c.onPropertyNotify(&e)
		case xproto.SelectionClearEvent:
			// Ownership loss also arrives as an XFixes notification
			// carrying the new owner; nothing to do here.
		default:
		}
	}
}

func (c *xConn) onSelectionNotify(e *xproto.SelectionNotifyEvent) {
	c.mu.Lock()
	pc := c.conv
	c.mu.Unlock()
	if pc == nil || e.Target != pc.target {
		return
	}
	if e.Property == xproto.AtomNone {
		// The owner refused, or nobody owns the selection.
		c.finishConv(pc, &ConvReply{Target: pc.target})
		return
	}
	typ, data, err := c.fetchProperty()
	if err != nil {
		slog.Debug("reading selection property failed", "err", err)
		c.finishConv(pc, &ConvReply{Target: pc.target})
		return
	}
	if typ == c.atomIncr {
		// Large transfer: the owner now feeds chunks through
		// PropertyNotify; deleting the INCR property above started it.
		c.mu.Lock()
		pc.incr = true
		c.mu.Unlock()
		return
	}
	c.finishConv(pc, &ConvReply{Target: pc.target, Type: typ, Data: data})
}

func (c *xConn) onPropertyNotify(e *xproto.PropertyNotifyEvent) {
	if e.Atom != c.propSel || e.State != xproto.PropertyNewValue {
		return
	}
	c.mu.Lock()
	pc := c.conv
	incr := pc != nil && pc.incr
	c.mu.Unlock()
	if !incr {
		return
	}
	typ, data, err := c.fetchProperty()
	if err != nil {
		slog.Debug("reading INCR chunk failed", "err", err)
		c.finishConv(pc, &ConvReply{Target: pc.target})
		return
	}
	if len(data) == 0 {
		c.finishConv(pc, &ConvReply{Target: pc.target, Type: pc.typ, Data: pc.buf})
		return
	}
	c.mu.Lock()
	pc.typ = typ
	pc.buf = append(pc.buf, data...)
	c.mu.Unlock()
}

// fetchProperty reads and deletes the conversion property on our
// window.
func (c *xConn) fetchProperty() (xproto.Atom, []byte, error) {
	r, err := xproto.GetProperty(c.conn, true, c.win, c.propSel,
		xproto.GetPropertyTypeAny, 0, math.MaxUint32).Reply()
	if err != nil {
		return xproto.AtomNone, nil, err
	}
	return r.Type, r.Value, nil
}
