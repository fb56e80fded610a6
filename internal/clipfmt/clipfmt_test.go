package clipfmt

import "testing"

func TestFindByName(t *testing.T) {
	tests := []struct {
		name string
		tag  Tag
	}{
		{"UTF8_STRING", TagUtf8},
		{"text/plain;charset=UTF-8", TagUtf8},
		{"text/plain;charset=utf-8", TagUtf8},
		{"STRING", TagText},
		{"TEXT", TagText},
		{"text/plain", TagText},
		{"COMPOUND_TEXT", TagCText},
	}
	for _, tc := range tests {
		idx := FindByName(tc.name)
		if idx == None {
			t.Errorf("FindByName(%q) = None", tc.name)
			continue
		}
		if idx.Tag() != tc.tag {
			t.Errorf("FindByName(%q).Tag() = %v, want %v", tc.name, idx.Tag(), tc.tag)
		}
		if idx.HostFormat() != HostFormatText {
			t.Errorf("FindByName(%q).HostFormat() = %v, want text", tc.name, idx.HostFormat())
		}
	}
}

func TestFindByNameUnknown(t *testing.T) {
	for _, name := range []string{"STRING_FOO", "image/png", "", "INVALID"} {
		if idx := FindByName(name); idx != None && name != "INVALID" {
			t.Errorf("FindByName(%q) = %d, want None", name, idx)
		}
	}
	// The INVALID entry itself is never returned by lookup.
	if idx := FindByName("INVALID"); idx != None {
		t.Errorf("FindByName(INVALID) = %d, want None", idx)
	}
}

func TestEnumerate(t *testing.T) {
	var got []string
	for i := Enumerate(HostFormatText, None); i != None; i = Enumerate(HostFormatText, i) {
		got = append(got, i.Name())
	}
	want := []string{
		"UTF8_STRING",
		"text/plain;charset=UTF-8",
		"text/plain;charset=utf-8",
		"STRING",
		"TEXT",
		"text/plain",
		"COMPOUND_TEXT",
	}
	if len(got) != len(want) {
		t.Fatalf("enumerated %d entries, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEnumerateEmptyMask(t *testing.T) {
	if i := Enumerate(0, None); i != None {
		t.Errorf("Enumerate(0, None) = %d, want None", i)
	}
	if i := Enumerate(HostFormatBitmap, None); i != None {
		t.Errorf("Enumerate(bitmap, None) = %d, want None", i)
	}
}

func TestBestText(t *testing.T) {
	idx := func(name string) Index { return FindByName(name) }
	tests := []struct {
		name       string
		candidates []Index
		want       Tag
	}{
		{"utf8 wins over ctext and plain",
			[]Index{idx("COMPOUND_TEXT"), idx("text/plain"), idx("UTF8_STRING")}, TagUtf8},
		{"ctext wins over plain",
			[]Index{idx("COMPOUND_TEXT"), idx("text/plain")}, TagCText},
		{"plain alone",
			[]Index{idx("STRING")}, TagText},
		{"unrecognised only", []Index{None, None}, TagInvalid},
		{"empty", nil, TagInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BestText(tc.candidates)
			if got.Tag() != tc.want {
				t.Errorf("BestText = %v (%q), want tag %v", got.Tag(), got.Name(), tc.want)
			}
		})
	}
}
