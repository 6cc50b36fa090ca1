package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PostgresRepo persists notification records.
//
// Table assumed: notifications, with an index on (status, created_at) for the
// drain and retry scans.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) EnqueueNotification(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const q = `
INSERT INTO notifications (
  id, call_id, type, payload, destination, status, error_detail,
  retry_count, priority, message_id, created_at, sent_at, latency_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.CallID,
		rec.Type,
		rec.Payload,
		rec.Destination,
		rec.Status,
		rec.ErrorDetail,
		rec.RetryCount,
		rec.Priority,
		rec.MessageID,
		rec.CreatedAt,
		rec.SentAt,
		rec.LatencyMs,
	)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

const selectRecord = `
SELECT id, call_id, type, payload, destination, status, error_detail,
       retry_count, priority, message_id, created_at, sent_at, latency_ms
FROM notifications
`

func (r *PostgresRepo) FetchPendingNotifications(ctx context.Context, limit int) ([]Record, error) {
	const q = selectRecord + `
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
`
	return r.list(ctx, q, limit)
}

func (r *PostgresRepo) FetchFailedRetryable(ctx context.Context, limit, maxRetries int) ([]Record, error) {
	const q = selectRecord + `
WHERE status IN ('failed', 'retrying') AND retry_count < $2
ORDER BY created_at
LIMIT $1
`
	return r.list(ctx, q, limit, maxRetries)
}

func (r *PostgresRepo) UpdateNotification(ctx context.Context, id string, status Status, messageID, errDetail string, sentAt *time.Time, latencyMs int64) error {
	const q = `
UPDATE notifications
SET status = $2, message_id = $3, error_detail = $4, sent_at = $5, latency_ms = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, status, messageID, errDetail, sentAt, latencyMs)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

func (r *PostgresRepo) MarkRetrying(ctx context.Context, id string, retryCount int) error {
	const q = `
UPDATE notifications
SET status = 'retrying', retry_count = $2
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, retryCount)
	if err != nil {
		return err
	}
	return oneRowAffected(res)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CallID,
			&rec.Type,
			&rec.Payload,
			&rec.Destination,
			&rec.Status,
			&rec.ErrorDetail,
			&rec.RetryCount,
			&rec.Priority,
			&rec.MessageID,
			&rec.CreatedAt,
			&rec.SentAt,
			&rec.LatencyMs,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func oneRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepo)(nil)
