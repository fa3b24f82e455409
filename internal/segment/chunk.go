package segment

import "fmt"

// Chunk is one bounded segment of a document plus the metadata needed to map
// chunk-relative analysis results back onto document coordinates.
// Chunks are immutable values: created by one Segment call, never modified.
type Chunk struct {
	// ID is unique within a segmentation pass and correlates asynchronous
	// results that arrive out of order.
	ID string

	// Text is the chunk content, equal to document[Start:End] at
	// segmentation time.
	Text string

	// Start and End locate Text inside the original document as the
	// half-open byte range [Start, End).
	Start int
	End   int

	// Index is the chunk's position in the pass, running 0..Total-1.
	// Chunks are sorted ascending by Start.
	Index int

	// Total is the number of chunks produced by the pass.
	Total int

	// OverlapStart and OverlapEnd bound the document region this chunk
	// shares with the previous chunk. Meaningful only when HasOverlap is
	// true; the first chunk of a pass never has an overlap.
	OverlapStart int
	OverlapEnd   int
	HasOverlap   bool
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int { return c.End - c.Start }

// Span returns the chunk's document range.
func (c Chunk) Span() Span { return Span{Start: c.Start, End: c.End} }

// OverlapSpan returns the region shared with the previous chunk and whether
// one exists.
func (c Chunk) OverlapSpan() (Span, bool) {
	if !c.HasOverlap {
		return Span{}, false
	}
	return Span{Start: c.OverlapStart, End: c.OverlapEnd}, true
}

// String returns a short description for logs.
func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d/%d [%d, %d)", c.Index, c.Total, c.Start, c.End)
}

// Span is a half-open [Start, End) byte range in document coordinates.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// IsEmpty reports whether the span covers no bytes.
func (s Span) IsEmpty() bool { return s.End <= s.Start }

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return max(s.Start, other.Start) < min(s.End, other.End)
}

// Contains reports whether pos falls inside the span.
func (s Span) Contains(pos int) bool {
	return pos >= s.Start && pos < s.End
}

// String formats the span as [start, end).
func (s Span) String() string {
	return fmt.Sprintf("[%d, %d)", s.Start, s.End)
}
