package bridge

import (
	"log/slog"

	"github.com/BurntSushi/xgb/xproto"
)

// eventLoop is the single goroutine hosting all X11 selection state.
// It interleaves X events with queued work items until a work item
// raises the exit flag or the connection dies.
func (b *Bridge) eventLoop() {
	defer close(b.done)
	if b.grabOnStart {
		b.queryTargets()
	}
	for !b.exit {
		select {
		case ev := <-b.conn.Events():
			if _, dead := ev.(*ConnClosed); dead {
				slog.Warn("X connection lost, clipboard event loop exiting")
				return
			}
			dispatchEvent(b.conn.Window(), ev)
		case <-b.wake:
			b.runWork()
		}
	}
}

func (b *Bridge) runWork() {
	b.workMu.Lock()
	items := b.work
	b.work = nil
	b.workMu.Unlock()
	for _, fn := range items {
		fn()
	}
}

// dispatchEvent recovers the bridge context for the window the event
// belongs to and routes the event. The connection layer's event stream
// carries no user pointer, hence the registry lookup.
func dispatchEvent(win xproto.Window, ev any) {
	b := lookupContext(win)
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case *OwnerChange:
		b.onOwnerChange(e)
	case *ConvReply:
		b.onConvReply(e)
	case *ConvRequest:
		b.onConvRequest(e)
	default:
		slog.Debug("unhandled clipboard event", "event", ev)
	}
}

// onOwnerChange handles an XFixes owner notification. Our own grabs
// come back to us too and are ignored; a null owner means the selection
// is now empty.
func (b *Bridge) onOwnerChange(e *OwnerChange) {
	if e.Selection != b.selClipboard || e.Owner == b.conn.Window() {
		return
	}
	if e.Owner == 0 {
		b.reportEmptyX11()
		return
	}
	b.queryTargets()
}
