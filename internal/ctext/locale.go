package ctext

import (
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// Charset is the eight-bit character set of the captured locale, used as
// the preferred GR set when encoding. A nil charmap means the locale is
// UTF-8 (or a multi-byte charset) and everything non-ASCII rides in UTF-8
// segments.
type Charset struct {
	name string
	cm   *charmap.Charmap
}

// Name returns the charset name as captured, "UTF-8" when none applied.
func (cs Charset) Name() string {
	if cs.name == "" {
		return "UTF-8"
	}
	return cs.name
}

// Latin1 is the charset of ISO 8859-1 locales, and the fixed decode
// default mandated by the compound text initial state.
var Latin1 = Charset{name: "ISO-8859-1", cm: charmap.ISO8859_1}

// SystemCharset captures the character set of the current locale from
// LC_ALL, LC_CTYPE, or LANG, in that order. The bridge calls this once
// at start; later environment changes are not observed. Locales without
// a codeset suffix, and the C/POSIX locales, are treated as Latin-1 the
// way Xlib does.
func SystemCharset() Charset {
	locale := ""
	for _, v := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if s := os.Getenv(v); s != "" {
			locale = s
			break
		}
	}
	return charsetForLocale(locale)
}

func charsetForLocale(locale string) Charset {
	if locale == "" || locale == "C" || locale == "POSIX" {
		return Latin1
	}
	// Strip any modifier ("@euro") and split off the codeset.
	if i := strings.IndexByte(locale, '@'); i >= 0 {
		locale = locale[:i]
	}
	i := strings.IndexByte(locale, '.')
	if i < 0 {
		return Latin1
	}
	codeset := locale[i+1:]
	switch strings.ToUpper(strings.ReplaceAll(codeset, "-", "")) {
	case "UTF8":
		return Charset{name: "UTF-8"}
	}
	enc, err := ianaindex.IANA.Encoding(codeset)
	if err != nil || enc == nil {
		return Latin1
	}
	if cm, ok := enc.(*charmap.Charmap); ok {
		return Charset{name: codeset, cm: cm}
	}
	// Multi-byte locale charsets are not used as a GR set.
	return Charset{name: codeset}
}
