// Package style implements a mechanical style analyzer: fast, deterministic
// scans that locate surface defects (repeated words, double spaces, runaway
// punctuation, overlong sentences, trailing whitespace). It judges where,
// never how well written; it exists so the pipeline has a local analyzer
// with stable output.
package style

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/segment"
)

// Finding categories produced by this analyzer.
const (
	CategoryRepeatedWord       = "repeated-word"
	CategoryDoubleSpace        = "double-space"
	CategoryRepeatedPunct      = "repeated-punctuation"
	CategoryLongSentence       = "long-sentence"
	CategoryTrailingWhitespace = "trailing-whitespace"
)

// DefaultLongSentenceLimit is the grapheme count past which a sentence is
// flagged.
const DefaultLongSentenceLimit = 250

// Analyzer runs the mechanical checks over one chunk at a time.
type Analyzer struct {
	longSentenceLimit int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLongSentenceLimit overrides the sentence length threshold, measured
// in grapheme clusters.
func WithLongSentenceLimit(limit int) Option {
	return func(a *Analyzer) {
		if limit > 0 {
			a.longSentenceLimit = limit
		}
	}
}

// New creates a style analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{longSentenceLimit: DefaultLongSentenceLimit}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements analyze.Analyzer.
func (a *Analyzer) Name() string { return "style" }

// Analyze runs every check against the chunk text. The only error it
// returns is context cancellation between checks.
func (a *Analyzer) Analyze(ctx context.Context, chunk segment.Chunk) ([]analyze.Finding, error) {
	checks := []func(string) []analyze.Finding{
		a.checkRepeatedWords,
		a.checkDoubleSpaces,
		a.checkRepeatedPunctuation,
		a.checkLongSentences,
		a.checkTrailingWhitespace,
	}

	var findings []analyze.Finding
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		findings = append(findings, check(chunk.Text)...)
	}
	return findings, nil
}

// checkRepeatedWords flags a word immediately repeating itself with only
// whitespace between the two occurrences, case-insensitively.
func (a *Analyzer) checkRepeatedWords(text string) []analyze.Finding {
	var findings []analyze.Finding

	var prevWord string
	prevStart, prevEnd := 0, 0

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsLetter(r) {
			i += size
			continue
		}

		start := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !unicode.IsLetter(r) && r != '\'' {
				break
			}
			i += size
		}
		word := text[start:i]

		if prevWord != "" && strings.EqualFold(word, prevWord) &&
			allWhitespace(text[prevEnd:start]) {
			findings = append(findings, analyze.Finding{
				Category: CategoryRepeatedWord,
				Message:  fmt.Sprintf("%q is repeated", prevWord),
				Severity: analyze.SeverityWarning,
				Start:    prevStart,
				End:      i,
				Matched:  text[prevStart:i],
			})
		}
		prevWord, prevStart, prevEnd = word, start, i
	}
	return findings
}

// allWhitespace reports whether s is non-empty whitespace, i.e. the two
// words around it are truly adjacent.
func allWhitespace(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// checkDoubleSpaces flags runs of two or more spaces between words.
// Indentation after a newline is not flagged.
func (a *Analyzer) checkDoubleSpaces(text string) []analyze.Finding {
	var findings []analyze.Finding
	i := 0
	for i < len(text) {
		if text[i] != ' ' {
			i++
			continue
		}
		start := i
		for i < len(text) && text[i] == ' ' {
			i++
		}
		if i-start < 2 {
			continue
		}
		if start == 0 || text[start-1] == '\n' {
			continue
		}
		if i >= len(text) || text[i] == '\n' {
			continue
		}
		findings = append(findings, analyze.Finding{
			Category: CategoryDoubleSpace,
			Message:  fmt.Sprintf("%d consecutive spaces", i-start),
			Severity: analyze.SeverityHint,
			Start:    start,
			End:      i,
			Matched:  text[start:i],
		})
	}
	return findings
}

// checkRepeatedPunctuation flags runs of the same punctuation mark, e.g.
// "!!" or ",,". Periods are exempt so ellipses pass.
func (a *Analyzer) checkRepeatedPunctuation(text string) []analyze.Finding {
	var findings []analyze.Finding
	i := 0
	for i < len(text) {
		b := text[i]
		if !isRepeatablePunct(b) {
			i++
			continue
		}
		start := i
		for i < len(text) && text[i] == b {
			i++
		}
		if i-start < 2 {
			continue
		}
		findings = append(findings, analyze.Finding{
			Category: CategoryRepeatedPunct,
			Message:  fmt.Sprintf("%q repeated %d times", rune(b), i-start),
			Severity: analyze.SeverityHint,
			Start:    start,
			End:      i,
			Matched:  text[start:i],
		})
	}
	return findings
}

func isRepeatablePunct(b byte) bool {
	switch b {
	case '!', '?', ',', ';', ':':
		return true
	default:
		return false
	}
}

// checkLongSentences flags sentences longer than the configured limit,
// measured in grapheme clusters so multi-byte text is not penalized.
func (a *Analyzer) checkLongSentences(text string) []analyze.Finding {
	var findings []analyze.Finding

	flag := func(start, end int) []analyze.Finding {
		sentence := strings.TrimSpace(text[start:end])
		if sentence == "" {
			return nil
		}
		n := uniseg.GraphemeClusterCount(sentence)
		if n <= a.longSentenceLimit {
			return nil
		}
		return []analyze.Finding{{
			Category: CategoryLongSentence,
			Message:  fmt.Sprintf("sentence runs %d characters", n),
			Severity: analyze.SeverityHint,
			Start:    start,
			End:      end,
			Matched:  text[start:end],
		}}
	}

	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
		default:
			continue
		}
		end := i + 1
		if end < len(text) && !isSpaceByte(text[end]) {
			continue
		}
		findings = append(findings, flag(start, end)...)
		start = end
	}
	// An unterminated final fragment still counts.
	findings = append(findings, flag(start, len(text))...)
	return findings
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// checkTrailingWhitespace flags spaces or tabs sitting before a newline.
func (a *Analyzer) checkTrailingWhitespace(text string) []analyze.Finding {
	var findings []analyze.Finding
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		j := i
		for j > 0 && (text[j-1] == ' ' || text[j-1] == '\t') {
			j--
		}
		if j == i {
			continue
		}
		findings = append(findings, analyze.Finding{
			Category: CategoryTrailingWhitespace,
			Message:  "trailing whitespace before line break",
			Severity: analyze.SeverityHint,
			Start:    j,
			End:      i,
			Matched:  text[j:i],
		})
	}
	return findings
}
