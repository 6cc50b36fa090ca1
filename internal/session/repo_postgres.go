package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callflow-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo persists sessions and webhook events in Postgres.
//
// Tables assumed:
// - call_sessions (one row per call, keyed by call_id)
// - webhook_events (immutable append-only; INSERT-only policy recommended)
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const selectCall = `
SELECT call_id, status, native_status, answered_by, notify_destination,
       started_at, ended_at, duration_seconds,
       outcome_success, outcome_reason, outcome_completed_at,
       recording_available, transcript_available,
       created_at, updated_at
FROM call_sessions
WHERE call_id = $1
`

func (r *PostgresRepo) GetCall(ctx context.Context, callID string) (CallSession, error) {
	return scanCall(r.db.QueryRowContext(ctx, selectCall, callID))
}

func (r *PostgresRepo) UpsertCall(ctx context.Context, callID string, up Update) (CallSession, error) {
	now := r.clock().UTC()

	var out CallSession
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize writers for the same call.
		s, err := scanCall(tx.QueryRowContext(ctx, selectCall+"FOR UPDATE", callID))
		if errors.Is(err, ErrNotFound) {
			s = CallSession{
				CallID:     callID,
				Status:     StatusInitiated,
				AnsweredBy: AnsweredByUnknown,
				StartedAt:  now,
				CreatedAt:  now,
			}
			const ins = `
INSERT INTO call_sessions (
  call_id, status, native_status, answered_by, notify_destination,
  started_at, duration_seconds, outcome_success,
  recording_available, transcript_available, created_at, updated_at
) VALUES ($1,$2,'',$3,'',$4,0,FALSE,FALSE,FALSE,$4,$4)
`
			if _, err := tx.ExecContext(ctx, ins, s.CallID, s.Status, s.AnsweredBy, now); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		up.apply(&s, now)

		const upd = `
UPDATE call_sessions
SET status = $2, native_status = $3, answered_by = $4, notify_destination = $5,
    ended_at = $6, duration_seconds = $7,
    outcome_success = $8, outcome_reason = $9, outcome_completed_at = $10,
    recording_available = $11, transcript_available = $12, updated_at = $13
WHERE call_id = $1
`
		if _, err := tx.ExecContext(ctx, upd,
			s.CallID,
			s.Status,
			s.NativeStatus,
			s.AnsweredBy,
			s.NotifyDestination,
			s.EndedAt,
			s.DurationSeconds,
			s.OutcomeSuccess,
			nullIfEmpty(s.OutcomeReason),
			s.OutcomeCompletedAt,
			s.RecordingAvailable,
			s.TranscriptAvailable,
			s.UpdatedAt,
		); err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (r *PostgresRepo) AppendEvent(ctx context.Context, e WebhookEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	const q = `
INSERT INTO webhook_events (id, call_id, status, raw_payload, received_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, e.Status, e.RawPayload, e.ReceivedAt)
	return err
}

func (r *PostgresRepo) ListCalls(ctx context.Context, from, to time.Time) ([]CallSession, error) {
	const q = `
SELECT call_id, status, native_status, answered_by, notify_destination,
       started_at, ended_at, duration_seconds,
       outcome_success, outcome_reason, outcome_completed_at,
       recording_available, transcript_available,
       created_at, updated_at
FROM call_sessions
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallSession, 0)
	for rows.Next() {
		s, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallSession, error) {
	var s CallSession
	var reason sql.NullString
	if err := row.Scan(
		&s.CallID,
		&s.Status,
		&s.NativeStatus,
		&s.AnsweredBy,
		&s.NotifyDestination,
		&s.StartedAt,
		&s.EndedAt,
		&s.DurationSeconds,
		&s.OutcomeSuccess,
		&reason,
		&s.OutcomeCompletedAt,
		&s.RecordingAvailable,
		&s.TranscriptAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	s.OutcomeReason = reason.String
	return s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repository = (*PostgresRepo)(nil)
