// Package hosttext converts clipboard text between the host's native
// shape (16-bit code units, CRLF line endings, NUL terminated) and the
// encodings X11 peers exchange: UTF-8, compound text, and Latin-1.
//
// All conversions are pure functions. Host-bound output always carries
// a terminating NUL code unit; X11-bound output carries a terminating
// NUL byte which the selection owner trims before replying, since many
// X11 clients dislike zero-terminated payloads.
package hosttext

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/ctext"
)

const (
	cr = 0x0d
	lf = 0x0a
)

// clip truncates units at the first NUL so that inputs with and without
// a terminator convert identically.
func clip(units []uint16) []uint16 {
	for i, u := range units {
		if u == 0 {
			return units[:i]
		}
	}
	return units
}

// winToUnix rewrites CRLF line endings to LF. Only a CR immediately
// followed by LF is dropped, so CRCRLF becomes CRLF, CRLFCR becomes
// LFCR, and a CR with no LF after it survives untouched.
func winToUnix(units []uint16) []uint16 {
	out := make([]uint16, 0, len(units))
	for i, u := range units {
		if u == cr && i+1 < len(units) && units[i+1] == lf {
			continue
		}
		out = append(out, u)
	}
	return out
}

// unixToWin expands LF to CRLF, leaving existing CRLF pairs intact.
func unixToWin(units []uint16) []uint16 {
	out := make([]uint16, 0, len(units)+len(units)/8)
	for i, u := range units {
		if u == lf && (i == 0 || units[i-1] != cr) {
			out = append(out, cr)
		}
		out = append(out, u)
	}
	return out
}

// ToUTF8 converts host text to NUL-terminated UTF-8 with Unix line
// endings. Empty input (or a lone terminator) reports ErrNoData, as the
// host should not have announced text it does not hold.
func ToUTF8(units []uint16) ([]byte, error) {
	src := clip(units)
	if len(src) == 0 {
		return nil, fmt.Errorf("host text empty: %w", cliperr.ErrNoData)
	}
	s := string(utf16.Decode(winToUnix(src)))
	out := make([]byte, 0, len(s)+1)
	out = append(out, s...)
	return append(out, 0), nil
}

// ToCText converts host text to NUL-terminated compound text, passing
// through UTF-8 and the captured locale charset.
func ToCText(units []uint16, cs ctext.Charset) ([]byte, error) {
	u8, err := ToUTF8(units)
	if err != nil {
		return nil, err
	}
	out, err := ctext.Encode(cs, string(u8[:len(u8)-1]))
	if err != nil {
		return nil, err
	}
	return append(out, 0), nil
}

// toHost expands line endings and appends the terminating NUL code unit.
// The empty string still yields a single NUL so that callers get the
// two-byte payload the host protocol expects.
func toHost(s string) []uint16 {
	units := unixToWin(utf16.Encode([]rune(s)))
	return append(units, 0)
}

func trimNulBytes(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// FromUTF8 converts X11 UTF-8 text to host code units. Input that fails
// UTF-8 validation is decoded as Latin-1 instead, which matches what
// legacy owners put behind STRING.
func FromUTF8(b []byte) ([]uint16, error) {
	b = trimNulBytes(b)
	if !utf8.Valid(b) {
		return FromLatin1(b)
	}
	return toHost(string(b)), nil
}

// FromLatin1 converts X11 Latin-1 text to host code units; each byte
// maps to the identical code point.
func FromLatin1(b []byte) ([]uint16, error) {
	b = trimNulBytes(b)
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return toHost(string(runes)), nil
}

// FromCText converts X11 compound text to host code units.
func FromCText(b []byte, cs ctext.Charset) ([]uint16, error) {
	b = trimNulBytes(b)
	if len(b) == 0 {
		// The toolkit text-property calls cannot handle empty strings;
		// short-circuit to the bare terminator.
		return []uint16{0}, nil
	}
	u8, err := ctext.Decode(cs, b)
	if err != nil {
		return nil, err
	}
	return FromUTF8(u8)
}

// EncodeBytes flattens host code units to the little-endian byte order
// the host protocol carries on the wire.
func EncodeBytes(units []uint16) []byte {
	out := make([]byte, 2*len(units))
	for i, u := range units {
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}

// DecodeBytes reassembles host code units from little-endian bytes. A
// trailing odd byte is rejected.
func DecodeBytes(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("odd host text length %d: %w", len(b), cliperr.ErrUnresolved)
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return units, nil
}
