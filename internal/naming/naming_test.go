package naming

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		input   string
		key     string
		display string
	}{
		{"Honza", "Honza", "Honza"},
		{"Jiří", "Jiri", "Jiri"},
		{"José", "Jose", "Jose"},
		{"ÑANDÚ", "NANDU", "Nandu"},
		{"María José", "MariaJose", "Mariajose"},
		{"o'neil-smith", "oneilsmith", "Oneilsmith"},
		{"Agent 007", "Agent007", "Agent007"},
		{"Søren Łukasz", "SorenLukasz", "Sorenlukasz"},
		{"Žluťoučký kůň", "Zlutouckykun", "Zlutouckykun"},
		{"3rd", "3rd", "3rd"},
		{"Владимир", "", ""},
		{"", "", ""},
		{"  ", "", ""},
		{"!!! ,.;", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Canonicalize(tt.input, KeyMode); got != tt.key {
				t.Errorf("Canonicalize(%q, KeyMode) = %q, want %q", tt.input, got, tt.key)
			}
			if got := Canonicalize(tt.input, DisplayMode); got != tt.display {
				t.Errorf("Canonicalize(%q, DisplayMode) = %q, want %q", tt.input, got, tt.display)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Jan Novák", "JOHN DOE", "jan-novák", "Ángela Ñúñez 2", "ø", "", "???", "mIxEd CaSe 42",
	}
	for _, in := range inputs {
		for _, mode := range []Mode{KeyMode, DisplayMode} {
			once := Canonicalize(in, mode)
			twice := Canonicalize(once, mode)
			if once != twice {
				t.Errorf("Canonicalize not idempotent for %q in %s mode: %q then %q", in, mode, once, twice)
			}
		}
		key := Key(in)
		if Key(key) != key {
			t.Errorf("Key not idempotent for %q: %q then %q", in, key, Key(key))
		}
	}
}

func TestCanonicalizeName(t *testing.T) {
	tests := []struct {
		input    string
		mode     Mode
		expected string
	}{
		{"juan PÉREZ", DisplayMode, "JuanPerez"},
		{"juan PÉREZ", KeyMode, "juanPEREZ"},
		{"  ana   maría  ", DisplayMode, "AnaMaria"},
		{"mateo agudelo-toro", DisplayMode, "MateoAgudelotoro"},
		{"", DisplayMode, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input+"/"+tt.mode.String(), func(t *testing.T) {
			if got := CanonicalizeName(tt.input, tt.mode); got != tt.expected {
				t.Errorf("CanonicalizeName(%q, %s) = %q, want %q", tt.input, tt.mode, got, tt.expected)
			}
		})
	}
}

func TestCanonicalizeName_KeyModeMatchesCanonicalize(t *testing.T) {
	for _, in := range []string{"Ana María", "Carol", "x y z", "Ñ-ñ"} {
		if CanonicalizeName(in, KeyMode) != Canonicalize(in, KeyMode) {
			t.Errorf("composite key of %q differs from whole-string key", in)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		mode  Mode
		ok    bool
	}{
		{"key", KeyMode, true},
		{"DISPLAY", DisplayMode, true},
		{"", KeyMode, true},
		{"title", KeyMode, false},
	}
	for _, tt := range tests {
		mode, ok := ParseMode(tt.input)
		if mode != tt.mode || ok != tt.ok {
			t.Errorf("ParseMode(%q) = (%v, %v), want (%v, %v)", tt.input, mode, ok, tt.mode, tt.ok)
		}
	}
}

func TestCourseFullKey_DistinctOwners(t *testing.T) {
	a := CourseFullKey(Key("Mateo"), Key("Math 101"))
	b := CourseFullKey(Key("Laura"), Key("Math 101"))
	if a == b {
		t.Fatalf("expected distinct full keys, both %q", a)
	}
	owner, course, ok := SplitCourseFullKey(a)
	if !ok || owner != "Mateo" || course != "Math101" {
		t.Errorf("SplitCourseFullKey(%q) = (%q, %q, %v)", a, owner, course, ok)
	}
}

func TestSplitCourseFullKey_Invalid(t *testing.T) {
	for _, in := range []string{"", "nocolon", ":course", "owner:", "own er:course"} {
		if _, _, ok := SplitCourseFullKey(in); ok {
			t.Errorf("SplitCourseFullKey(%q) should fail", in)
		}
	}
}

func TestRecordKey(t *testing.T) {
	got := RecordKey("Mateo", "Math101", "monday")
	if got != "Mateo:Math101:monday" {
		t.Errorf("RecordKey = %q", got)
	}
}

func TestIsKey(t *testing.T) {
	tests := map[string]bool{
		"Alice": true,
		"a1":    true,
		"":      false,
		"a b":   false,
		"a:b":   false,
		"José":  false,
	}
	for in, want := range tests {
		if got := IsKey(in); got != want {
			t.Errorf("IsKey(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSplitMembers(t *testing.T) {
	got := SplitMembers("Alice, bob ,, Álice,Carol Díaz,bob")
	want := []string{"Alice", "bob", "CarolDiaz"}
	if len(got) != len(want) {
		t.Fatalf("SplitMembers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SplitMembers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
