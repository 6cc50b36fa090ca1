package session

import "time"

// CallSession is the canonical per-call record.
//
// Invariants:
// - Status only moves forward: non-terminal -> non-terminal, or -> exactly one
//   terminal status. Never terminal -> anything.
// - Mutated only by the webhook reconciler; everything else reads.
type CallSession struct {
	CallID string `json:"call_id" db:"call_id"`

	Status CanonicalStatus `json:"status" db:"status"`

	// NativeStatus is the provider's raw status string, kept for audit.
	NativeStatus string `json:"native_status,omitempty" db:"native_status"`

	AnsweredBy AnsweredBy `json:"answered_by" db:"answered_by"`

	// NotifyDestination identifies where call notifications are delivered
	// (chat id, phone number, channel-specific address).
	NotifyDestination string `json:"notify_destination,omitempty" db:"notify_destination"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// Outcome is set once, when the session reaches a terminal status.
	OutcomeSuccess     bool       `json:"outcome_success" db:"outcome_success"`
	OutcomeReason      string     `json:"outcome_reason,omitempty" db:"outcome_reason"`
	OutcomeCompletedAt *time.Time `json:"outcome_completed_at,omitempty" db:"outcome_completed_at"`

	RecordingAvailable  bool `json:"recording_available" db:"recording_available"`
	TranscriptAvailable bool `json:"transcript_available" db:"transcript_available"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Outcome summarizes how a call ended.
type Outcome struct {
	Success         bool      `json:"success"`
	Reason          string    `json:"reason"`
	DurationSeconds int       `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Outcome reason codes.
const (
	ReasonCompleted             = "completed"
	ReasonInputValidationFailed = "input_validation_failed"
	ReasonBusy                  = "busy"
	ReasonNoAnswer              = "no_answer"
	ReasonUserCanceled          = "user_canceled"
	ReasonProviderFailure       = "provider_failure"
)

// WebhookEvent is an immutable, append-only record of one accepted provider
// status event. Never updated or deleted; used for audit and reconciliation
// disputes.
type WebhookEvent struct {
	ID         string          `json:"id" db:"id"`
	CallID     string          `json:"call_id" db:"call_id"`
	Status     CanonicalStatus `json:"status" db:"status"`
	RawPayload string          `json:"raw_payload,omitempty" db:"raw_payload"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"`
}

type AnsweredBy string

const (
	AnsweredByUnknown AnsweredBy = "unknown"
	AnsweredByHuman   AnsweredBy = "human"
	AnsweredByMachine AnsweredBy = "machine"
)

// ParseAnsweredBy maps provider answering-machine-detection values onto the
// three classifications we track. Twilio sends machine_start,
// machine_end_beep, machine_end_silence, machine_end_other, fax, human.
func ParseAnsweredBy(raw string) AnsweredBy {
	switch raw {
	case "human":
		return AnsweredByHuman
	case "machine", "machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax":
		return AnsweredByMachine
	default:
		return AnsweredByUnknown
	}
}
