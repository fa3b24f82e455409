package analyze

import (
	"sort"
	"strings"
)

// Dedupe removes findings that describe the same issue twice, which happens
// by design when adjacent chunks analyze their shared overlap region. Two
// findings are duplicates when their absolute spans overlap, their
// categories match, and their matched text is equal after trimming
// surrounding whitespace (the overlap cut can hand one chunk a trailing
// space the other never saw). The instance from the earliest chunk wins.
// The input is not modified; the result is sorted by span.
func Dedupe(findings []AbsoluteFinding) []AbsoluteFinding {
	if len(findings) <= 1 {
		out := make([]AbsoluteFinding, len(findings))
		copy(out, findings)
		return out
	}

	sorted := make([]AbsoluteFinding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.End < b.End
	})

	out := make([]AbsoluteFinding, 0, len(sorted))
	for _, f := range sorted {
		dup := -1
		for k := range out {
			if sameFinding(out[k], f) {
				dup = k
				break
			}
		}
		if dup == -1 {
			out = append(out, f)
			continue
		}
		// A later-sorted twin can still come from an earlier chunk when
		// its span starts later inside the overlap.
		if f.ChunkIndex < out[dup].ChunkIndex {
			out[dup] = f
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
	return out
}

func sameFinding(a, b AbsoluteFinding) bool {
	if a.Category != b.Category {
		return false
	}
	if !a.Span().Overlaps(b.Span()) {
		return false
	}
	return strings.TrimSpace(a.Matched) == strings.TrimSpace(b.Matched)
}
