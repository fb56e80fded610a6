package bridge

import (
	"encoding/binary"
	"log/slog"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/hosttext"
)

// dataRequest is the one-shot record of a pending host data fetch. At
// most one exists per context; busy guards admission.
type dataRequest struct {
	format Format
	text   clipfmt.Index
	cookie any
}

func (b *Bridge) resetX11Formats() {
	b.x11Text = clipfmt.None
	b.x11Bitmap = clipfmt.None
}

// reportFormats tells the host which formats the X11 side offers, based
// on the best text target seen.
func (b *Bridge) reportFormats() {
	b.fe.ReportFormats(b.x11Text.HostFormat())
}

func (b *Bridge) reportEmptyX11() {
	b.resetX11Formats()
	b.reportFormats()
}

// queryTargets polls the selection owner for its TARGETS list. A poll
// arriving while a transfer is outstanding is folded into a deferred
// refresh; rapid-fire ownership changes collapse into one.
func (b *Bridge) queryTargets() {
	if b.busy {
		b.updateNeeded = true
		return
	}
	b.busy = true
	b.conn.ConvertSelection(b.selClipboard, b.atomTargets)
}

// readWorker runs on the loop goroutine for each host data request.
func (b *Bridge) readWorker(f Format, cookie any) {
	if b.busy {
		// A transfer is in flight; the host protocol retries.
		b.fe.CompleteRequest(cookie, nil, cliperr.ErrTryAgain)
		return
	}
	if f != FormatText {
		b.fe.CompleteRequest(cookie, nil, cliperr.ErrNotImplemented)
		return
	}
	if b.x11Text == clipfmt.None {
		// The host thinks X11 has data and it does not.
		b.fe.CompleteRequest(cookie, nil, cliperr.ErrNoData)
		return
	}
	b.busy = true
	b.pending = &dataRequest{format: f, text: b.x11Text, cookie: cookie}
	b.conn.ConvertSelection(b.selClipboard, b.tableAtoms[b.x11Text])
}

// onConvReply routes a conversion completion to the TARGETS or the data
// path. Either way the transfer slot frees up, and a refresh deferred
// while it was taken runs afterwards.
func (b *Bridge) onConvReply(e *ConvReply) {
	b.busy = false
	if e.Target == b.atomTargets {
		b.onTargetsReply(e)
	} else {
		b.onDataReply(e)
	}
	if b.updateNeeded {
		b.updateNeeded = false
		b.queryTargets()
	}
}

func (b *Bridge) onTargetsReply(e *ConvReply) {
	if e.Type == TypeConvertFail || len(e.Data) == 0 {
		b.reportEmptyX11()
		return
	}
	best := clipfmt.BestText(b.translateTargets(e.Data))
	if b.x11Text != best {
		b.x11Text = best
	}
	b.x11Bitmap = clipfmt.None // not yet supported
	b.reportFormats()
}

// translateTargets maps a raw TARGETS reply (32-bit atoms) to format
// table indices; unrecognised targets translate to None.
func (b *Bridge) translateTargets(data []byte) []clipfmt.Index {
	out := make([]clipfmt.Index, 0, len(data)/4)
	for len(data) >= 4 {
		a := xproto.Atom(binary.LittleEndian.Uint32(data))
		data = data[4:]
		out = append(out, b.formatByAtom(a))
	}
	return out
}

func (b *Bridge) formatByAtom(a xproto.Atom) clipfmt.Index {
	if a == xproto.AtomNone {
		return clipfmt.None
	}
	for i := 1; i < len(b.tableAtoms); i++ {
		if b.tableAtoms[i] == a {
			return clipfmt.Index(i)
		}
	}
	return clipfmt.None
}

// onDataReply finishes the pending host data request: transcode the
// owner's bytes to host text and complete upstream. A convert-fail
// reply is a timeout whatever format was asked for; an empty reply
// means the selection evaporated before we could fetch it.
func (b *Bridge) onDataReply(e *ConvReply) {
	req := b.pending
	b.pending = nil
	if req == nil {
		slog.Debug("conversion reply with no pending request", "target", e.Target)
		return
	}

	var data []byte
	var err error
	switch {
	case e.Type == TypeConvertFail:
		err = cliperr.ErrTimeout
	case len(e.Data) == 0:
		err = cliperr.ErrNoData
	default:
		var units []uint16
		switch req.text.Tag() {
		case clipfmt.TagCText:
			units, err = hosttext.FromCText(e.Data, b.charset)
		case clipfmt.TagUtf8, clipfmt.TagText:
			units, err = hosttext.FromUTF8(e.Data)
		default:
			err = cliperr.ErrUnresolved
		}
		if err == nil {
			data = hosttext.EncodeBytes(units)
		}
	}
	if err != nil {
		slog.Debug("clipboard fetch failed", "err", err)
	}
	b.fe.CompleteRequest(req.cookie, data, err)
}
