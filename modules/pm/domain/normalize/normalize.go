// Package normalize turns raw policy numbers and names from insurer
// statements and external exports into canonical matching keys. Source
// systems disagree on padding, separators and digit grouping, so the keys are
// deliberately aggressive: comparable across systems at the cost of some
// sensitivity.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var scientificRe = regexp.MustCompile(`^\d+[.,]\d+[eE]\+?\d+$`)

// PolicyNumber canonicalizes a raw policy number (VSNR). Spreadsheet exports
// occasionally render long numbers in scientific notation; those are expanded
// first. Every non-digit is stripped, then every zero digit is removed — not
// just leading zeros — so that differently padded and grouped renderings of
// the same number collapse onto one key. Losing zero-sensitivity is the
// accepted trade-off. An empty result maps to "0".
func PolicyNumber(raw string) string {
	s := strings.TrimSpace(raw)
	if scientificRe.MatchString(s) {
		s = expandScientific(s)
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '1' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}

func expandScientific(s string) string {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}

// Name canonicalizes a person or company name: lowercased, umlauts and ß
// transliterated to their ASCII digraphs, everything that is not a letter or
// digit dropped.
func Name(raw string) string {
	s := transliterate(strings.ToLower(strings.TrimSpace(raw)))

	var b strings.Builder
	for _, r := range s {
		if isAlnum(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DBName is the softer variant used for policyholder matching. Parenthetical
// content survives as separate tokens instead of being discarded:
// "Müller (GmbH)" becomes "mueller gmbh".
func DBName(raw string) string {
	s := transliterate(strings.ToLower(strings.TrimSpace(raw)))

	var b strings.Builder
	for _, r := range s {
		if isAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var transliterator = strings.NewReplacer(
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"ß", "ss",
)

func transliterate(s string) string {
	return transliterator.Replace(s)
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
