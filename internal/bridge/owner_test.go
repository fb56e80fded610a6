package bridge

import (
	"bytes"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func announceText(t *testing.T, b *Bridge, fc *fakeConn, fe *fakeFrontend, s string) {
	t.Helper()
	fe.setHostText(s)
	b.AnnounceFormats(FormatText)
	if sel := recv(t, fc.ownCh, "CLIPBOARD grab"); sel != fc.atom("CLIPBOARD") {
		t.Fatalf("first grab = %d, want CLIPBOARD", sel)
	}
	if sel := recv(t, fc.ownCh, "PRIMARY grab"); sel != fc.atom("PRIMARY") {
		t.Fatalf("second grab = %d, want PRIMARY", sel)
	}
}

func convRequest(fc *fakeConn, target xproto.Atom) *ConvRequest {
	return &ConvRequest{
		Requestor: 7,
		Selection: fc.atom("CLIPBOARD"),
		Target:    target,
		Property:  999,
		Time:      1,
	}
}

func TestAnnounceGrabsSelections(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hi\x00")
	if !fc.isOwned(fc.atom("CLIPBOARD")) || !fc.isOwned(fc.atom("PRIMARY")) {
		t.Error("selections not owned after announce")
	}
}

func TestAnnounceEmptyReleasesSelections(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hi\x00")

	b.AnnounceFormats(0)
	recv(t, fc.disownCh, "CLIPBOARD release")
	recv(t, fc.disownCh, "PRIMARY release")
	if fc.isOwned(fc.atom("CLIPBOARD")) || fc.isOwned(fc.atom("PRIMARY")) {
		t.Error("selections still owned after empty announce")
	}

	// With nothing announced, conversions are refused and the host is
	// never consulted.
	fc.events <- convRequest(fc, fc.atom("UTF8_STRING"))
	recv(t, fc.refuseCh, "refusal")
	if n := fe.hostCallCount(); n != 0 {
		t.Errorf("host data fetched %d times, want 0", n)
	}
}

func TestTargetsReply(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hi\x00")

	fc.events <- convRequest(fc, fc.atom("TARGETS"))
	r := recv(t, fc.replyCh, "TARGETS reply")
	if r.typ != xproto.AtomAtom || r.format != 32 {
		t.Fatalf("reply type/format = %d/%d, want ATOM/32", r.typ, r.format)
	}
	want := atomsLE(
		fc.atom("UTF8_STRING"),
		fc.atom("text/plain;charset=UTF-8"),
		fc.atom("text/plain;charset=utf-8"),
		fc.atom("STRING"),
		fc.atom("TEXT"),
		fc.atom("text/plain"),
		fc.atom("COMPOUND_TEXT"),
		fc.atom("TARGETS"),
		fc.atom("MULTIPLE"),
		fc.atom("TIMESTAMP"),
	)
	if !bytes.Equal(r.data, want) {
		t.Errorf("TARGETS data = %v, want %v", r.data, want)
	}
}

func TestUtf8ConversionForPeer(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hello world\x00")

	fc.events <- convRequest(fc, fc.atom("UTF8_STRING"))
	r := recv(t, fc.replyCh, "conversion reply")
	if r.typ != fc.atom("UTF8_STRING") || r.format != 8 {
		t.Fatalf("reply type/format = %d/%d", r.typ, r.format)
	}
	// The terminator is trimmed before it reaches the peer.
	if want := []byte("hello world"); !bytes.Equal(r.data, want) {
		t.Errorf("data = %q, want %q", r.data, want)
	}
}

func TestCompoundTextConversionForPeer(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hello world\x00")

	fc.events <- convRequest(fc, fc.atom("COMPOUND_TEXT"))
	r := recv(t, fc.replyCh, "conversion reply")
	if r.typ != fc.atom("COMPOUND_TEXT") {
		t.Errorf("reply type = %d, want COMPOUND_TEXT", r.typ)
	}
	if r.format != 8 {
		t.Errorf("reply format = %d, want 8", r.format)
	}
	if want := []byte("hello world"); !bytes.Equal(r.data, want) {
		t.Errorf("data = %q, want %q", r.data, want)
	}
}

func TestUnknownTargetRefused(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hi\x00")

	fc.events <- convRequest(fc, fc.atom("image/png"))
	recv(t, fc.refuseCh, "refusal")
}

func TestMultipleAndTimestampRefused(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hi\x00")

	fc.events <- convRequest(fc, fc.atom("MULTIPLE"))
	recv(t, fc.refuseCh, "MULTIPLE refusal")
	fc.events <- convRequest(fc, fc.atom("TIMESTAMP"))
	recv(t, fc.refuseCh, "TIMESTAMP refusal")
}

func TestUnsupportedSelectionRefused(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hi\x00")

	req := convRequest(fc, fc.atom("UTF8_STRING"))
	req.Selection = fc.atom("SECONDARY")
	fc.events <- req
	recv(t, fc.refuseCh, "refusal")
}

func TestHostDataCachedAcrossConversions(t *testing.T) {
	b, fc, fe := newTestBridge(t)
	announceText(t, b, fc, fe, "hello\x00")

	fc.events <- convRequest(fc, fc.atom("UTF8_STRING"))
	recv(t, fc.replyCh, "first reply")
	fc.events <- convRequest(fc, fc.atom("STRING"))
	recv(t, fc.replyCh, "second reply")
	if n := fe.hostCallCount(); n != 1 {
		t.Errorf("host data fetched %d times, want 1 (cached)", n)
	}

	// A new announcement invalidates the cache.
	announceText(t, b, fc, fe, "other\x00")
	fc.events <- convRequest(fc, fc.atom("UTF8_STRING"))
	r := recv(t, fc.replyCh, "third reply")
	if want := []byte("other"); !bytes.Equal(r.data, want) {
		t.Errorf("data = %q, want %q", r.data, want)
	}
	if n := fe.hostCallCount(); n != 2 {
		t.Errorf("host data fetched %d times, want 2", n)
	}
}
