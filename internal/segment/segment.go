package segment

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Default option values.
const (
	DefaultMaxChunkSize = 5000
	DefaultOverlapSize  = 200
)

// Options configures a segmentation pass.
type Options struct {
	// MaxChunkSize bounds the byte length of every produced chunk. A cut
	// never lands past start+MaxChunkSize, so per-chunk analysis cost
	// stays bounded no matter how long a sentence runs.
	MaxChunkSize int

	// OverlapSize is the number of bytes of trailing context repeated at
	// the start of the next chunk.
	OverlapSize int

	// RespectSentenceBoundaries moves each cut back to the last sentence
	// end inside the search window instead of cutting mid-sentence.
	RespectSentenceBoundaries bool

	// Language is a BCP-47 tag selecting the abbreviation set used to
	// reject false sentence boundaries. Only the base language is
	// significant. Empty selects English.
	Language string
}

// DefaultOptions returns the options used when the caller has no opinion:
// 5000-byte chunks, 200 bytes of overlap, sentence boundaries respected.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize:              DefaultMaxChunkSize,
		OverlapSize:               DefaultOverlapSize,
		RespectSentenceBoundaries: true,
	}
}

// Validate rejects unusable options. MaxChunkSize must exceed twice
// OverlapSize or the walk could fail to advance.
func (o Options) Validate() error {
	if o.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size %d must be positive", ErrInvalidOptions, o.MaxChunkSize)
	}
	if o.OverlapSize <= 0 {
		return fmt.Errorf("%w: overlap size %d must be positive", ErrInvalidOptions, o.OverlapSize)
	}
	if o.MaxChunkSize <= 2*o.OverlapSize {
		return fmt.Errorf("%w: max chunk size %d must exceed twice the overlap size %d",
			ErrInvalidOptions, o.MaxChunkSize, o.OverlapSize)
	}
	if o.Language != "" {
		if _, err := language.Parse(o.Language); err != nil {
			return fmt.Errorf("%w: language %q: %v", ErrInvalidOptions, o.Language, err)
		}
	}
	return nil
}

// Segment splits text into an ordered sequence of chunks covering
// [0, len(text)) with no gaps. Text no longer than MaxChunkSize yields a
// single chunk with no overlap metadata; empty text yields no chunks.
// Option validation failures are returned before any text is inspected.
func Segment(text string, opts Options) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(text) == 0 {
		return nil, nil
	}
	if len(text) <= opts.MaxChunkSize {
		return []Chunk{{
			ID:    uuid.NewString(),
			Text:  text,
			Start: 0,
			End:   len(text),
			Index: 0,
			Total: 1,
		}}, nil
	}

	scan := newBoundaryScanner(opts.Language)
	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + opts.MaxChunkSize
		if end >= len(text) {
			end = len(text)
		} else if opts.RespectSentenceBoundaries {
			// Search the trailing 40% of the proposed chunk for the
			// last real sentence end; fall back to a hard cut.
			lo := start + opts.MaxChunkSize*6/10
			if b := scan.lastBoundary(text, lo, end); b > start {
				end = b
			} else {
				end = hardCut(text, start, end)
			}
		} else {
			end = hardCut(text, start, end)
		}

		chunks = append(chunks, Chunk{
			ID:    uuid.NewString(),
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
		if end >= len(text) {
			break
		}
		next := snapForward(text, max(start, end-opts.OverlapSize))
		if next <= start {
			// Degenerate sizes must still advance the walk. The jump
			// stays within the chunk just emitted, so coverage holds.
			_, size := utf8.DecodeRuneInString(text[start:])
			next = snapForward(text, start+size)
		}
		start = next
	}

	total := len(chunks)
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = total
		if i == 0 {
			continue
		}
		if prev := chunks[i-1]; prev.End > chunks[i].Start {
			chunks[i].HasOverlap = true
			chunks[i].OverlapStart = chunks[i].Start
			chunks[i].OverlapEnd = prev.End
		}
	}
	return chunks, nil
}

// hardCut places a cut at pos without splitting a UTF-8 rune, preferring to
// move back. When snapping back would reach start it steps over the rune at
// start instead, exceeding the size limit by at most three bytes.
func hardCut(text string, start, pos int) int {
	for pos > start && !utf8.RuneStart(text[pos]) {
		pos--
	}
	if pos <= start {
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return pos
}

// snapForward moves pos to the next rune start. Overlap may shrink by a few
// bytes; it never grows.
func snapForward(text string, pos int) int {
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}
