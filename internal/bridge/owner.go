package bridge

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/hosttext"
)

// onConvRequest answers an X11 peer asking for our selection. Only the
// TARGETS meta-target and the text targets matching what the host
// announced get a real reply; everything else is refused. MULTIPLE and
// TIMESTAMP are advertised for compatibility but not answered.
func (b *Bridge) onConvRequest(e *ConvRequest) {
	if e.Selection != b.selClipboard && e.Selection != b.selPrimary {
		b.refuse(e)
		return
	}
	if e.Target == b.atomTargets {
		b.replyTargets(e)
		return
	}
	if err := b.convertForPeer(e); err != nil {
		if name, nerr := b.conn.AtomName(e.Target); nerr == nil {
			slog.Debug("refusing selection request", "target", name, "err", err)
		} else {
			slog.Debug("refusing selection request", "target", e.Target, "err", err)
		}
		b.refuse(e)
	}
}

func (b *Bridge) refuse(e *ConvRequest) {
	if err := b.conn.Refuse(e); err != nil {
		slog.Error("refusing conversion failed", "err", err)
	}
}

// replyTargets builds the TARGETS list: every format table entry that
// matches the announced host formats, plus TARGETS, MULTIPLE and
// TIMESTAMP, as 32-bit atoms.
func (b *Bridge) replyTargets(e *ConvRequest) {
	var atoms []xproto.Atom
	for i := clipfmt.Enumerate(b.hostFormats, clipfmt.None); i != clipfmt.None; i = clipfmt.Enumerate(b.hostFormats, i) {
		atoms = append(atoms, b.tableAtoms[i])
	}
	atoms = append(atoms, b.atomTargets, b.atomMultiple, b.atomTimestamp)

	data := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(a))
	}
	if err := b.conn.Reply(e, xproto.AtomAtom, 32, data); err != nil {
		slog.Error("TARGETS reply failed", "err", err)
	}
}

// hostText fetches the host clipboard text, serving repeat conversions
// of the same announcement from the unicode cache.
func (b *Bridge) hostText() ([]byte, error) {
	if b.unicodeCache == nil {
		data, err := b.fe.HostClipboardData(FormatText)
		if err != nil {
			return nil, err
		}
		b.unicodeCache = data
	}
	return b.unicodeCache, nil
}

func (b *Bridge) convertForPeer(e *ConvRequest) error {
	idx := b.formatByAtom(e.Target)
	tag := idx.Tag()
	isText := tag == clipfmt.TagUtf8 || tag == clipfmt.TagCText || tag == clipfmt.TagText
	if !isText || b.hostFormats&FormatText == 0 {
		return cliperr.ErrNotSupported
	}

	raw, err := b.hostText()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return cliperr.ErrNoData
	}
	units, err := hosttext.DecodeBytes(raw)
	if err != nil {
		return err
	}

	var out []byte
	typ := e.Target
	switch tag {
	case clipfmt.TagCText:
		out, err = hosttext.ToCText(units, b.charset)
		typ = b.tableAtoms[clipfmt.FindByName("COMPOUND_TEXT")]
	default:
		out, err = hosttext.ToUTF8(units)
	}
	if err != nil {
		return err
	}
	// Trim the terminator; some X11 applications dislike
	// zero-terminated text.
	if n := len(out); n > 0 && out[n-1] == 0 {
		out = out[:n-1]
	}
	if err := b.conn.Reply(e, typ, 8, out); err != nil {
		return fmt.Errorf("conversion reply: %w", err)
	}
	return nil
}
