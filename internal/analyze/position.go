package analyze

import "github.com/dshills/prosecheck/internal/segment"

// MapToDocument translates a chunk-relative finding into document-absolute
// coordinates using the chunk's position metadata. Both offsets are clamped
// into [chunk.Start, chunk.Start+len(chunk.Text)] so a malformed upstream
// offset may still be wrong but can never point outside the chunk's own
// span. Pure; the only misuse is pairing a finding with a chunk it did not
// come from, which is a caller error this function cannot detect.
func MapToDocument(f Finding, chunk segment.Chunk) AbsoluteFinding {
	lo := chunk.Start
	hi := chunk.Start + len(chunk.Text)

	abs := AbsoluteFinding{
		Finding:    f,
		ChunkID:    chunk.ID,
		ChunkIndex: chunk.Index,
	}
	abs.Start = clamp(chunk.Start+f.Start, lo, hi)
	abs.End = clamp(chunk.Start+f.End, lo, hi)
	return abs
}

// Clamped reports whether mapping f against chunk had to move an offset,
// which means the analyzer emitted out-of-range positions.
func Clamped(f Finding, chunk segment.Chunk) bool {
	return f.Start < 0 || f.End < 0 ||
		f.Start > len(chunk.Text) || f.End > len(chunk.Text)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
