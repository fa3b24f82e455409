// Package segment splits large documents into bounded, context-preserving
// chunks suitable for per-chunk linguistic analysis.
//
// # Chunking
//
// Segment walks a document left to right, cutting it into chunks of at most
// MaxChunkSize bytes. When sentence boundaries are respected, each cut is
// moved back to the last sentence end inside a search window so that no
// chunk stops mid-sentence; when no boundary exists in the window the cut
// falls back to the size limit. Neighboring chunks share up to OverlapSize
// bytes of context so findings near a cut keep their surroundings:
//
//	document:  |----------------------------------------------|
//	chunk 0:   |--------------|
//	chunk 1:            |--------------|
//	chunk 2:                     |---------------|
//	                    ^^ overlap regions ^^
//
// Every chunk records its half-open [Start, End) byte range in the original
// document. The union of all chunk ranges covers the document exactly, with
// no gaps.
//
// # Sentence Boundaries
//
// A sentence boundary is a '.', '!' or '?' followed by optional closing
// quotes or brackets and then whitespace or end of text. Periods that end a
// known abbreviation ("Dr.", "etc."), sit inside a decimal number ("3.14"),
// or belong to an ellipsis ("...") are not boundaries. The abbreviation set
// is chosen by the options' language tag.
//
// Segmentation is pure: no I/O, no shared state, safe to call from any
// goroutine.
package segment
