// Package naming turns free-form human names into canonical identity keys.
package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Mode selects how a canonical token is cased.
type Mode int

const (
	// KeyMode preserves case and digits verbatim. Used for identity keys.
	KeyMode Mode = iota
	// DisplayMode upper-cases the first character and lower-cases the rest.
	DisplayMode
)

// String returns the mode name as accepted by ParseMode.
func (m Mode) String() string {
	if m == DisplayMode {
		return "display"
	}
	return "key"
}

// ParseMode parses "key" or "display" (case-insensitive). Unknown input yields KeyMode and false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "key", "":
		return KeyMode, true
	case "display":
		return DisplayMode, true
	}
	return KeyMode, false
}

// extraFolds covers Latin letters that have no canonical decomposition.
var extraFolds = map[rune]rune{
	'Ø': 'O', 'ø': 'o',
	'Đ': 'D', 'đ': 'd',
	'Ł': 'L', 'ł': 'l',
	'Ħ': 'H', 'ħ': 'h',
	'ı': 'i',
}

// accentFolds maps accented Latin letters (Latin-1 Supplement and Latin Extended-A)
// to their unaccented ASCII base letter, preserving case.
var accentFolds = buildAccentFolds()

func buildAccentFolds() map[rune]rune {
	folds := make(map[rune]rune, len(extraFolds)+160)
	for r := rune(0x00C0); r <= 0x017F; r++ {
		if base, ok := decomposeToASCII(r); ok {
			folds[r] = base
		}
	}
	for r, base := range extraFolds {
		folds[r] = base
	}
	return folds
}

// decomposeToASCII returns the ASCII base letter of r when r decomposes (NFD) into
// one ASCII letter followed only by combining marks.
func decomposeToASCII(r rune) (rune, bool) {
	decomposed := norm.NFD.String(string(r))
	base, size := utf8.DecodeRuneInString(decomposed)
	if size == len(decomposed) || !isASCIILetter(base) {
		return 0, false
	}
	for _, mark := range decomposed[size:] {
		if !unicode.Is(unicode.Mn, mark) {
			return 0, false
		}
	}
	return base, true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIAlnum(r rune) bool {
	return isASCIILetter(r) || (r >= '0' && r <= '9')
}

// fold returns the ASCII replacement for r, or false when r must be dropped.
func fold(r rune) (rune, bool) {
	if isASCIIAlnum(r) {
		return r, true
	}
	base, ok := accentFolds[r]
	return base, ok
}

// Canonicalize reduces raw to a single run-on token of ASCII letters and digits.
// Accented Latin letters fold to their base letter, everything else (whitespace,
// punctuation, symbols, non-Latin scripts) is dropped without a separator.
// The result is empty when nothing survives; callers must reject empty keys.
func Canonicalize(raw string, mode Mode) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if folded, ok := fold(r); ok {
			b.WriteRune(folded)
		}
	}
	token := b.String()
	if mode == DisplayMode && token != "" {
		token = strings.ToUpper(token[:1]) + strings.ToLower(token[1:])
	}
	return token
}

// CanonicalizeName canonicalizes each whitespace-separated token of a composite
// name independently and concatenates the results. In DisplayMode this yields
// "JuanPerez" for "juan PÉREZ"; in KeyMode it equals Canonicalize(raw, KeyMode).
func CanonicalizeName(raw string, mode Mode) string {
	var b strings.Builder
	for _, token := range strings.Fields(raw) {
		b.WriteString(Canonicalize(token, mode))
	}
	return b.String()
}

// Key returns the canonical identity key for a person or course name.
func Key(raw string) string {
	return CanonicalizeName(raw, KeyMode)
}
