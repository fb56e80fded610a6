package bridge

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// maxContexts is the number of simultaneous bridge instances supported.
// Anything real needs one; tests run several so that instances can talk
// to each other in a controlled environment.
const maxContexts = 20

// contexts maps a selection window to its bridge context. Selection
// event handlers recover their context here, because the connection
// layer's event stream carries no user pointer. Entries are written
// only from Start and Stop while the instance's loop is not running, so
// reads from loop goroutines need no lock.
var contexts [maxContexts]struct {
	win xproto.Window
	ctx *Bridge
}

func registerContext(b *Bridge) error {
	win := b.conn.Window()
	slot := -1
	for i := range contexts {
		if contexts[i].win == win || contexts[i].ctx == b {
			return fmt.Errorf("context already registered for window %d", win)
		}
		if contexts[i].win == 0 && slot < 0 {
			slot = i
		}
	}
	if slot < 0 {
		return fmt.Errorf("all %d context slots in use", maxContexts)
	}
	contexts[slot].win = win
	contexts[slot].ctx = b
	return nil
}

func unregisterContext(b *Bridge) {
	win := b.conn.Window()
	for i := range contexts {
		if contexts[i].win == win {
			contexts[i].win = 0
			contexts[i].ctx = nil
		}
	}
}

func lookupContext(win xproto.Window) *Bridge {
	if win == 0 {
		return nil
	}
	for i := range contexts {
		if contexts[i].win == win {
			return contexts[i].ctx
		}
	}
	return nil
}
