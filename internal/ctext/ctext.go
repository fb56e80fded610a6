// Package ctext implements the ISO 2022 compound text encoding used by
// X11 to carry multi-script text (ICCCM section 2, "COMPOUND_TEXT").
//
// The initial state is GL = ASCII, GR = the right half of ISO 8859-1.
// Eight-bit right-half sets are switched with "ESC - F" designations and
// arbitrary text rides in UTF-8 segments bracketed by "ESC % G" and
// "ESC % @". That subset covers everything the clipboard bridge emits
// and everything the common toolkits produce for plain text.
package ctext

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/hostclip/clipbridge/internal/cliperr"
)

const esc = 0x1b

// Right-half (96-character) designation finals from ISO 2375
// registrations, as emitted by Xlib for the ISO 8859 family.
var gr96 = []struct {
	final byte
	cm    *charmap.Charmap
}{
	{'A', charmap.ISO8859_1},
	{'B', charmap.ISO8859_2},
	{'C', charmap.ISO8859_3},
	{'D', charmap.ISO8859_4},
	{'F', charmap.ISO8859_7},
	{'G', charmap.ISO8859_6},
	{'H', charmap.ISO8859_8},
	{'L', charmap.ISO8859_5},
	{'M', charmap.ISO8859_9},
}

func charmapByFinal(final byte) *charmap.Charmap {
	for _, g := range gr96 {
		if g.final == final {
			return g.cm
		}
	}
	return nil
}

func finalByCharmap(cm *charmap.Charmap) (byte, bool) {
	for _, g := range gr96 {
		if g.cm == cm {
			return g.final, true
		}
	}
	return 0, false
}

// Encode converts UTF-8 text to compound text. Characters outside ASCII
// are carried in the charset's right half where it can represent them
// (designating it to GR once), falling back to a UTF-8 segment, so the
// result is lossless. The input must be valid UTF-8.
func Encode(cs Charset, s string) ([]byte, error) {
	var out []byte
	grDesignated := false
	utf8Seg := false

	grFinal, grOK := byte(0), false
	if cs.cm != nil {
		grFinal, grOK = finalByCharmap(cs.cm)
	}

	endSeg := func() {
		if utf8Seg {
			out = append(out, esc, '%', '@')
			utf8Seg = false
		}
	}

	for _, r := range s {
		if r < 0x80 {
			endSeg()
			out = append(out, byte(r))
			continue
		}
		if grOK {
			if b, ok := cs.cm.EncodeRune(r); ok && b >= 0xa0 {
				endSeg()
				if !grDesignated && cs.cm != charmap.ISO8859_1 {
					out = append(out, esc, '-', grFinal)
					grDesignated = true
				}
				out = append(out, b)
				continue
			}
		}
		if !utf8Seg {
			out = append(out, esc, '%', 'G')
			utf8Seg = true
		}
		out = append(out, []byte(string(r))...)
	}
	endSeg()
	return out, nil
}

// Decode converts compound text to UTF-8. Designations of right-half
// sets outside the table above, multi-byte designations, and truncated
// escape sequences are reported as unresolved conversion errors.
func Decode(cs Charset, ct []byte) ([]byte, error) {
	var out []byte
	gr := charmap.ISO8859_1
	utf8Seg := false

	for i := 0; i < len(ct); i++ {
		b := ct[i]
		if b == esc {
			if i+2 >= len(ct) {
				return nil, fmt.Errorf("truncated escape: %w", cliperr.ErrUnresolved)
			}
			kind, final := ct[i+1], ct[i+2]
			i += 2
			switch kind {
			case '-': // designate 96-set to GR
				cm := charmapByFinal(final)
				if cm == nil {
					return nil, fmt.Errorf("unknown GR set %q: %w", final, cliperr.ErrUnresolved)
				}
				gr = cm
			case '(': // designate 94-set to GL
				if final != 'B' && final != 'J' {
					return nil, fmt.Errorf("unknown GL set %q: %w", final, cliperr.ErrUnresolved)
				}
			case '%':
				switch final {
				case 'G':
					utf8Seg = true
				case '@':
					utf8Seg = false
				default:
					return nil, fmt.Errorf("unknown segment %q: %w", final, cliperr.ErrUnresolved)
				}
			default:
				return nil, fmt.Errorf("unsupported escape %q: %w", kind, cliperr.ErrUnresolved)
			}
			continue
		}
		if utf8Seg {
			out = append(out, b)
			continue
		}
		if b < 0x80 {
			out = append(out, b)
			continue
		}
		out = append(out, []byte(string(gr.DecodeByte(b)))...)
	}
	return out, nil
}
