package analyze

import (
	"fmt"
	"hash/fnv"

	"github.com/dshills/prosecheck/internal/segment"
)

// Severity ranks how strongly a finding should be surfaced.
type Severity uint8

const (
	SeverityHint Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityHint:
		return "hint"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity maps a severity name to its value. Unknown names fall back
// to SeverityWarning.
func ParseSeverity(name string) Severity {
	switch name {
	case "hint":
		return SeverityHint
	case "info":
		return SeverityInfo
	case "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Finding is one located issue inside a chunk, with offsets relative to the
// chunk's text. Well-formed findings satisfy
// 0 <= Start < End <= len(chunk.Text) and Matched == chunk.Text[Start:End];
// the pipeline tolerates violations by clamping during position mapping.
type Finding struct {
	// ID identifies the finding across passes. Analyzers may assign it;
	// when empty the pipeline derives one with DeriveID.
	ID string

	// Category names the rule or check that produced the finding, e.g.
	// "repeated-word".
	Category string

	// Message describes the issue for the reader.
	Message string

	// Suggestion optionally proposes replacement text.
	Suggestion string

	Severity Severity

	// Start and End are half-open offsets into the chunk text.
	Start int
	End   int

	// Matched is the text the finding refers to.
	Matched string
}

// AbsoluteFinding is a Finding whose Start and End have been translated to
// document-absolute offsets, plus the identity of the chunk it came from.
type AbsoluteFinding struct {
	Finding

	// ChunkID correlates the finding with the segmentation pass chunk
	// that produced it.
	ChunkID string

	// ChunkIndex orders duplicate findings: the lowest index wins.
	ChunkIndex int
}

// Span returns the finding's absolute document range.
func (f AbsoluteFinding) Span() segment.Span {
	return segment.Span{Start: f.Start, End: f.End}
}

// Valid reports whether the span still covers at least one byte after
// clamping. Invalid findings are dropped, not surfaced.
func (f AbsoluteFinding) Valid() bool {
	return f.Start < f.End
}

// String returns a short description for logs.
func (f AbsoluteFinding) String() string {
	return fmt.Sprintf("%s [%d, %d) %s", f.Category, f.Start, f.End, f.Severity)
}

// DeriveID returns a deterministic finding identifier. Repeated passes
// over unchanged text produce identical IDs.
func DeriveID(category string, span segment.Span, matched string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s", category, span.Start, span.End, matched)
	return fmt.Sprintf("f%016x", h.Sum64())
}
