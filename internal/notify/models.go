package notify

import "time"

// Record is one queued unit of outbound messaging.
//
// Invariants:
// - Created by the reconciler or hint detector; mutated only by the queue.
// - Never deleted; kept for audit.
type Record struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	Type Type `json:"type" db:"type"`

	// Payload is a serialized (JSON) business payload; the queue treats it
	// as opaque. Rendering human-facing text belongs to the delivery side.
	Payload string `json:"payload,omitempty" db:"payload"`

	// Destination identifies the delivery target (chat id, phone number).
	Destination string `json:"destination" db:"destination"`

	Status      Status   `json:"status" db:"status"`
	ErrorDetail string   `json:"error_detail,omitempty" db:"error_detail"`
	RetryCount  int      `json:"retry_count" db:"retry_count"`
	Priority    Priority `json:"priority" db:"priority"`

	// MessageID is the channel-assigned id once sent.
	MessageID string `json:"message_id,omitempty" db:"message_id"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`

	LatencyMs int64 `json:"latency_ms" db:"latency_ms"`
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Type enumerates the business events the system notifies about.
type Type string

const (
	TypeCallOutcome     Type = "call_outcome"
	TypeMachineDetected Type = "machine_detected"
	TypeCallerListening Type = "caller_listening"
	TypeInputDetected   Type = "input_detected"
)
