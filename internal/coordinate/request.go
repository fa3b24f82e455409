package coordinate

import "time"

// Kind identifies which actor is asking for a content update. The zero
// value is invalid so a request's kind is always chosen deliberately.
type Kind uint8

const (
	kindUnknown Kind = iota

	// KindHumanEdit is a keystroke-driven change.
	KindHumanEdit

	// KindReplaceDocument programmatically replaces the whole
	// document.
	KindReplaceDocument

	// KindRestoreHistory restores an earlier snapshot of the
	// document.
	KindRestoreHistory

	// KindExternalSuggestion applies an accepted suggestion from an
	// external source.
	KindExternalSuggestion

	// KindBackgroundReformat is housekeeping, the lowest priority.
	KindBackgroundReformat
)

// Priority returns the fixed arbitration priority of the kind. Higher
// wins. The ordering is total and never configurable.
func (k Kind) Priority() int {
	switch k {
	case KindHumanEdit:
		return 100
	case KindReplaceDocument:
		return 80
	case KindRestoreHistory:
		return 60
	case KindExternalSuggestion:
		return 40
	case KindBackgroundReformat:
		return 20
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindHumanEdit:
		return "human-edit"
	case KindReplaceDocument:
		return "replace-document"
	case KindRestoreHistory:
		return "restore-history"
	case KindExternalSuggestion:
		return "external-suggestion"
	case KindBackgroundReformat:
		return "background-reformat"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k >= KindHumanEdit && k <= KindBackgroundReformat
}

// Request asks the coordinator to replace the document's content.
type Request struct {
	// ID correlates log lines; assigned on submit when empty.
	ID string

	Kind    Kind
	Content string

	// Source is a free-form origin tag for logs.
	Source string

	// Silent applies the content without notifying buffer change
	// listeners. Used when the content is already on screen.
	Silent bool

	// Timestamp records arrival; assigned on submit when zero.
	Timestamp time.Time
}
