package analyze

import (
	"strings"
	"testing"

	"github.com/dshills/prosecheck/internal/segment"
)

func TestMapToDocument(t *testing.T) {
	chunk := segment.Chunk{
		ID:    "c1",
		Text:  "some chunk text",
		Start: 100,
		End:   115,
		Index: 2,
	}

	tests := []struct {
		name      string
		finding   Finding
		wantStart int
		wantEnd   int
		clamped   bool
	}{
		{"in bounds", Finding{Start: 5, End: 10}, 105, 110, false},
		{"full chunk", Finding{Start: 0, End: 15}, 100, 115, false},
		{"negative start", Finding{Start: -4, End: 10}, 100, 110, true},
		{"end past chunk", Finding{Start: 5, End: 400}, 105, 115, true},
		{"both out low", Finding{Start: -10, End: -2}, 100, 100, true},
		{"both out high", Finding{Start: 200, End: 300}, 115, 115, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs := MapToDocument(tt.finding, chunk)
			if abs.Start != tt.wantStart || abs.End != tt.wantEnd {
				t.Errorf("mapped span = [%d, %d), want [%d, %d)",
					abs.Start, abs.End, tt.wantStart, tt.wantEnd)
			}
			if abs.ChunkID != chunk.ID || abs.ChunkIndex != chunk.Index {
				t.Errorf("chunk identity = %s/%d, want %s/%d",
					abs.ChunkID, abs.ChunkIndex, chunk.ID, chunk.Index)
			}
			if got := Clamped(tt.finding, chunk); got != tt.clamped {
				t.Errorf("Clamped() = %v, want %v", got, tt.clamped)
			}
			if wantValid := tt.wantStart < tt.wantEnd; abs.Valid() != wantValid {
				t.Errorf("Valid() = %v, want %v", abs.Valid(), wantValid)
			}
		})
	}
}

// The round-trip property: mapping a finding and slicing the document at the
// absolute offsets yields the same text as slicing the chunk at the relative
// offsets.
func TestMapToDocumentRoundTrip(t *testing.T) {
	doc := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	chunks, err := segment.Segment(doc, segment.Options{
		MaxChunkSize:              700,
		OverlapSize:               70,
		RespectSentenceBoundaries: true,
	})
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("fixture produced only %d chunks", len(chunks))
	}

	offsets := []struct{ start, end int }{
		{0, 9},
		{4, 9},
		{10, 15},
	}
	for _, c := range chunks {
		for _, o := range offsets {
			if o.end > len(c.Text) {
				continue
			}
			f := Finding{Start: o.start, End: o.end, Matched: c.Text[o.start:o.end]}
			abs := MapToDocument(f, c)
			if got, want := doc[abs.Start:abs.End], c.Text[o.start:o.end]; got != want {
				t.Fatalf("chunk %d: round trip of [%d, %d) = %q, want %q",
					c.Index, o.start, o.end, got, want)
			}
		}
	}
}

func TestDeriveID(t *testing.T) {
	span := segment.Span{Start: 10, End: 20}

	a := DeriveID("repeated-word", span, "the the")
	b := DeriveID("repeated-word", span, "the the")
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if a == "" {
		t.Error("empty ID")
	}

	variants := []string{
		DeriveID("double-space", span, "the the"),
		DeriveID("repeated-word", segment.Span{Start: 11, End: 20}, "the the"),
		DeriveID("repeated-word", span, "a a"),
	}
	for i, v := range variants {
		if v == a {
			t.Errorf("variant %d collided with base ID", i)
		}
	}
}

func TestSeverity(t *testing.T) {
	names := map[Severity]string{
		SeverityHint:    "hint",
		SeverityInfo:    "info",
		SeverityWarning: "warning",
		SeverityError:   "error",
	}
	for sev, want := range names {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
		if got := ParseSeverity(want); got != sev {
			t.Errorf("ParseSeverity(%q) = %v, want %v", want, got, sev)
		}
	}
	if got := ParseSeverity("nonsense"); got != SeverityWarning {
		t.Errorf("ParseSeverity fallback = %v, want warning", got)
	}
}
