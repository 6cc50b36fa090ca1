package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("notify: record not found")
	ErrInvalidArgument = errors.New("notify: invalid argument")
)

// Repository is the persistence contract for the notification queue.
//
// Records are never deleted; status transitions are
// pending -> sent | failed, failed -> retrying -> sent | failed.
type Repository interface {
	EnqueueNotification(ctx context.Context, rec Record) (string, error)

	// FetchPendingNotifications returns up to limit pending records,
	// oldest first.
	FetchPendingNotifications(ctx context.Context, limit int) ([]Record, error)

	// UpdateNotification records a delivery attempt result.
	UpdateNotification(ctx context.Context, id string, status Status, messageID, errDetail string, sentAt *time.Time, latencyMs int64) error

	// FetchFailedRetryable returns up to limit failed or retrying records
	// with retry_count below maxRetries, oldest first. Retrying records are
	// included so a process that died between MarkRetrying and the attempt
	// result does not strand them.
	FetchFailedRetryable(ctx context.Context, limit, maxRetries int) ([]Record, error)

	// MarkRetrying transitions a failed record to retrying and stores the
	// incremented retry count.
	MarkRetrying(ctx context.Context, id string, retryCount int) error
}
