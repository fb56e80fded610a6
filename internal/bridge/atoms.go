package bridge

import (
	"log/slog"

	"github.com/BurntSushi/xgb/xproto"
)

// atomCache interns the small closed set of target names the bridge
// uses, so repeated lookups stay local. Accessed from the event loop
// goroutine only (plus Start, before the loop runs); no eviction.
type atomCache struct {
	conn  Conn
	atoms map[string]xproto.Atom
}

func newAtomCache(conn Conn) *atomCache {
	return &atomCache{conn: conn, atoms: make(map[string]xproto.Atom, clipfmtTableSize)}
}

const clipfmtTableSize = 16

// atom interns name, returning AtomNone (and logging) on failure, which
// then simply never matches a real atom.
func (c *atomCache) atom(name string) xproto.Atom {
	if a, ok := c.atoms[name]; ok {
		return a
	}
	a, err := c.conn.InternAtom(name)
	if err != nil {
		slog.Error("atom intern failed", "name", name, "err", err)
		return xproto.AtomNone
	}
	c.atoms[name] = a
	return a
}
