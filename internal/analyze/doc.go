// Package analyze defines the finding model shared by the analysis
// pipeline: findings produced per chunk, their translation into
// document-absolute coordinates, and the deduplication of findings that
// chunk overlap reports twice.
//
// # Findings
//
// An Analyzer inspects one chunk and reports Findings with offsets relative
// to that chunk's text. MapToDocument translates a finding onto document
// coordinates using the chunk's position metadata, clamping malformed
// offsets into the chunk's own span so a misbehaving analyzer cannot point
// at unrelated text:
//
//	chunk:     [originalStart ................. originalEnd)
//	finding:        [start, end)   relative to chunk text
//	absolute:  [originalStart+start, originalStart+end)  clamped
//
// # Deduplication
//
// Adjacent chunks share an overlap region that is analyzed twice by design.
// Dedupe removes the resulting twins: findings whose absolute spans overlap
// and that describe the same matched content in the same category. The
// instance from the earliest chunk wins.
//
// Everything in this package is pure and safe for concurrent use.
package analyze
