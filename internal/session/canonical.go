package session

// CanonicalStatus is the internal call lifecycle vocabulary, independent of
// any provider's native status strings.
type CanonicalStatus string

const (
	StatusInitiated  CanonicalStatus = "initiated"
	StatusRinging    CanonicalStatus = "ringing"
	StatusAnswered   CanonicalStatus = "answered"
	StatusInProgress CanonicalStatus = "in_progress"
	StatusCompleted  CanonicalStatus = "completed"
	StatusBusy       CanonicalStatus = "busy"
	StatusNoAnswer   CanonicalStatus = "no_answer"
	StatusCanceled   CanonicalStatus = "canceled"
	StatusFailed     CanonicalStatus = "failed"
)

// canonicalByRaw maps provider status vocabularies onto the canonical enum.
// Covers the Twilio voice vocabulary plus the dash/underscore variants other
// providers send for the same lifecycle points.
var canonicalByRaw = map[string]CanonicalStatus{
	"queued":      StatusInitiated,
	"initiated":   StatusInitiated,
	"ringing":     StatusRinging,
	"answered":    StatusAnswered,
	"in-progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"completed":   StatusCompleted,
	"busy":        StatusBusy,
	"no-answer":   StatusNoAnswer,
	"no_answer":   StatusNoAnswer,
	"canceled":    StatusCanceled,
	"cancelled":   StatusCanceled,
	"failed":      StatusFailed,
}

// Canonicalize maps a provider-native status string to the canonical enum.
// Unmapped strings pass through unchanged so that new provider statuses do
// not break ingestion; they are treated as non-terminal.
func Canonicalize(raw string) CanonicalStatus {
	if s, ok := canonicalByRaw[raw]; ok {
		return s
	}
	return CanonicalStatus(raw)
}

// IsTerminal reports whether a status ends the call lifecycle.
func IsTerminal(s CanonicalStatus) bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// TerminalReason maps a terminal status to the default outcome reason code.
// The completed case is handled separately by the reconciler because success
// also depends on input-stage completion.
func TerminalReason(s CanonicalStatus) string {
	switch s {
	case StatusCompleted:
		return ReasonCompleted
	case StatusBusy:
		return ReasonBusy
	case StatusNoAnswer:
		return ReasonNoAnswer
	case StatusCanceled:
		return ReasonUserCanceled
	case StatusFailed:
		return ReasonProviderFailure
	default:
		return ""
	}
}
