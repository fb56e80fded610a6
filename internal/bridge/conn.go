package bridge

import "github.com/BurntSushi/xgb/xproto"

// TypeConvertFail is the sentinel reply type marking a conversion that
// the peer never answered. It mirrors the toolkit's XT_CONVERT_FAIL: a
// value no real atom can take.
const TypeConvertFail = xproto.Atom(0xffffffff)

// Conn is the slice of the X server connection the bridge uses. The
// production implementation rides xgb; tests substitute a scripted
// fake, so the selection logic can be exercised without a display.
//
// Events carries, in arrival order:
//
//	*OwnerChange  — an XFixes selection-owner notification
//	*ConvReply    — completion of a ConvertSelection call
//	*ConvRequest  — a peer asking us to convert our selection
//	*ConnClosed   — the connection died; no further events follow
type Conn interface {
	// Window returns the selection client window handle.
	Window() xproto.Window

	// InternAtom resolves a name to an atom, creating it if needed.
	InternAtom(name string) (xproto.Atom, error)

	// AtomName resolves an atom back to its name, for logging.
	AtomName(a xproto.Atom) (string, error)

	// WatchSelection subscribes to XFixes owner-change events for sel.
	WatchSelection(sel xproto.Atom) error

	// OwnSelection grabs sel for our window.
	OwnSelection(sel xproto.Atom) error

	// DisownSelection releases sel if we hold it.
	DisownSelection(sel xproto.Atom) error

	// ConvertSelection asks the current owner of sel for target. The
	// reply arrives later as a *ConvReply; a peer that never answers
	// is reported with Type == TypeConvertFail. At most one conversion
	// may be outstanding, which the bridge's busy flag guarantees.
	ConvertSelection(sel, target xproto.Atom)

	// Reply answers a *ConvRequest with data.
	Reply(req *ConvRequest, typ xproto.Atom, format byte, data []byte) error

	// Refuse rejects a *ConvRequest.
	Refuse(req *ConvRequest) error

	Events() <-chan any

	Close() error
}

// OwnerChange reports that the owner of a selection changed. A zero
// Owner means the selection is now unowned.
type OwnerChange struct {
	Selection xproto.Atom
	Owner     xproto.Window
}

// ConvReply is the completion of a ConvertSelection call. Data is nil
// when the owner refused the conversion; Type is TypeConvertFail when
// the owner never answered within the transfer timeout.
type ConvReply struct {
	Target xproto.Atom
	Type   xproto.Atom
	Data   []byte
}

// ConvRequest is a peer's request that we convert our selection.
type ConvRequest struct {
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
	Time      xproto.Timestamp
}

// ConnClosed is the final event on a dead connection.
type ConnClosed struct{}
