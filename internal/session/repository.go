package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session: call not found")

// Update is a partial update applied to a CallSession. Nil fields are left
// untouched. The reconciler is the only writer; it serializes per call.
type Update struct {
	Status              *CanonicalStatus
	NativeStatus        *string
	AnsweredBy          *AnsweredBy
	NotifyDestination   *string
	EndedAt             *time.Time
	DurationSeconds     *int
	OutcomeSuccess      *bool
	OutcomeReason       *string
	OutcomeCompletedAt  *time.Time
	RecordingAvailable  *bool
	TranscriptAvailable *bool
}

// Repository is the persistence contract for call sessions and their
// append-only webhook event log.
//
// The event log is append-only; there are no update or delete methods for
// events.
type Repository interface {
	// GetCall returns ErrNotFound when no session exists for callID.
	GetCall(ctx context.Context, callID string) (CallSession, error)

	// UpsertCall creates the session on first sight and applies the partial
	// update, returning the resulting row.
	UpsertCall(ctx context.Context, callID string, up Update) (CallSession, error)

	// AppendEvent records one accepted provider event.
	AppendEvent(ctx context.Context, e WebhookEvent) error

	// ListCalls returns sessions created within [from, to), for reporting.
	ListCalls(ctx context.Context, from, to time.Time) ([]CallSession, error)
}

func (u Update) apply(s *CallSession, now time.Time) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.NativeStatus != nil {
		s.NativeStatus = *u.NativeStatus
	}
	if u.AnsweredBy != nil {
		s.AnsweredBy = *u.AnsweredBy
	}
	if u.NotifyDestination != nil {
		s.NotifyDestination = *u.NotifyDestination
	}
	if u.EndedAt != nil {
		s.EndedAt = u.EndedAt
	}
	if u.DurationSeconds != nil {
		s.DurationSeconds = *u.DurationSeconds
	}
	if u.OutcomeSuccess != nil {
		s.OutcomeSuccess = *u.OutcomeSuccess
	}
	if u.OutcomeReason != nil {
		s.OutcomeReason = *u.OutcomeReason
	}
	if u.OutcomeCompletedAt != nil {
		s.OutcomeCompletedAt = u.OutcomeCompletedAt
	}
	if u.RecordingAvailable != nil {
		s.RecordingAvailable = *u.RecordingAvailable
	}
	if u.TranscriptAvailable != nil {
		s.TranscriptAvailable = *u.TranscriptAvailable
	}
	s.UpdatedAt = now
}
