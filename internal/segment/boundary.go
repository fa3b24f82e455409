package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// boundaryScanner finds sentence ends while rejecting the usual false
// positives: abbreviations, decimal points, ellipses.
type boundaryScanner struct {
	abbrevs map[string]struct{}
}

func newBoundaryScanner(tag string) *boundaryScanner {
	return &boundaryScanner{abbrevs: abbreviationsFor(tag)}
}

// lastBoundary returns the largest sentence-end offset b with lo <= b <= hi,
// or -1 when the window holds none. A sentence end is the offset just past
// the terminator and any closing quotes or brackets that follow it.
func (s *boundaryScanner) lastBoundary(text string, lo, hi int) int {
	if hi > len(text) {
		hi = len(text)
	}
	if lo < 1 {
		lo = 1
	}
	// Scan terminators from the top of the window down; the first valid
	// one yields the largest boundary because closer runs never contain
	// terminators.
	for i := hi - 1; i >= lo-1; i-- {
		switch text[i] {
		case '.', '!', '?':
		default:
			continue
		}
		b := afterClosers(text, i+1)
		if b < lo || b > hi {
			continue
		}
		if s.endsSentence(text, i) {
			return b
		}
	}
	return -1
}

// endsSentence reports whether the terminator at i really closes a sentence.
func (s *boundaryScanner) endsSentence(text string, i int) bool {
	if text[i] == '.' {
		// Part of an ellipsis run.
		if i > 0 && text[i-1] == '.' {
			return false
		}
		if i+1 < len(text) && text[i+1] == '.' {
			return false
		}
		if isDecimalPoint(text, i) {
			return false
		}
		if s.isAbbreviation(text, i) {
			return false
		}
	}
	// Only closing quotes or brackets may sit between the terminator and
	// the following whitespace or end of text.
	j := afterClosers(text, i+1)
	if j < len(text) {
		r, _ := utf8.DecodeRuneInString(text[j:])
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// isDecimalPoint reports a period with digits on both sides, as in "3.14".
func isDecimalPoint(text string, i int) bool {
	return i > 0 && i+1 < len(text) &&
		isDigit(text[i-1]) && isDigit(text[i+1])
}

// isAbbreviation reports a period that ends a known abbreviation token or a
// single-letter initial ("Dr.", "etc.", "J.", the "g" in "e.g.").
func (s *boundaryScanner) isAbbreviation(text string, i int) bool {
	j := i
	for j > 0 && isLetter(text[j-1]) {
		j--
	}
	if j == i {
		return false
	}
	word := text[j:i]
	if len(word) == 1 {
		return true
	}
	_, ok := s.abbrevs[strings.ToLower(word)]
	return ok
}

// afterClosers returns the offset past any run of closing quotes or
// brackets starting at pos.
func afterClosers(text string, pos int) int {
	for pos < len(text) {
		r, size := utf8.DecodeRuneInString(text[pos:])
		switch r {
		case '"', '\'', ')', ']', '}', '”', '’', '»':
			pos += size
		default:
			return pos
		}
	}
	return pos
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// abbreviationsFor returns the abbreviation set for a BCP-47 tag, falling
// back to English for unknown or empty tags.
func abbreviationsFor(tag string) map[string]struct{} {
	if tag == "" {
		return abbreviationSets["en"]
	}
	t, err := language.Parse(tag)
	if err != nil {
		return abbreviationSets["en"]
	}
	base, _ := t.Base()
	if set, ok := abbreviationSets[base.String()]; ok {
		return set
	}
	return abbreviationSets["en"]
}

var abbreviationSets = map[string]map[string]struct{}{
	"en": makeSet(
		"mr", "mrs", "ms", "dr", "prof", "rev", "hon", "gen", "col",
		"maj", "capt", "lt", "sgt", "st", "jr", "sr", "vs", "etc",
		"al", "inc", "ltd", "co", "corp", "dept", "univ", "assn",
		"approx", "apt", "ave", "blvd", "rd", "no", "vol", "pp", "ed",
		"fig", "est", "min", "max", "misc",
	),
}

func makeSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
