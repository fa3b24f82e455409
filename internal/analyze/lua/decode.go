package lua

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/segment"
)

// decodeFindings converts one rule's JSON output into findings. Offsets
// are chunk-relative; out-of-range values pass through for the position
// mapper to clamp.
func decodeFindings(out string, spec RuleSpec, chunk segment.Chunk) ([]analyze.Finding, error) {
	if out == "" {
		return nil, nil
	}
	if !gjson.Valid(out) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrBadRuleOutput)
	}
	parsed := gjson.Parse(out)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: expected a top-level array", ErrBadRuleOutput)
	}

	var findings []analyze.Finding
	for _, item := range parsed.Array() {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: array element is not an object", ErrBadRuleOutput)
		}

		f := analyze.Finding{
			ID:         item.Get("id").String(),
			Category:   item.Get("category").String(),
			Message:    item.Get("message").String(),
			Suggestion: item.Get("suggestion").String(),
			Start:      int(item.Get("start").Int()),
			End:        int(item.Get("end").Int()),
			Matched:    item.Get("matched").String(),
		}
		if f.Category == "" {
			f.Category = spec.Category
		}
		if sev := item.Get("severity"); sev.Exists() && sev.String() != "" {
			f.Severity = analyze.ParseSeverity(sev.String())
		} else {
			f.Severity = analyze.ParseSeverity(spec.Severity)
		}
		if f.Matched == "" && 0 <= f.Start && f.Start < f.End && f.End <= len(chunk.Text) {
			f.Matched = chunk.Text[f.Start:f.End]
		}
		findings = append(findings, f)
	}
	return findings, nil
}
