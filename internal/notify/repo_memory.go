package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory notification repository for tests and early
// development.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]Record{}}
}

func (r *MemoryRepo) EnqueueNotification(ctx context.Context, rec Record) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.records[rec.ID] = rec
	return rec.ID, nil
}

func (r *MemoryRepo) FetchPendingNotifications(ctx context.Context, limit int) ([]Record, error) {
	return r.filter(limit, func(rec Record) bool {
		return rec.Status == StatusPending
	})
}

func (r *MemoryRepo) FetchFailedRetryable(ctx context.Context, limit, maxRetries int) ([]Record, error) {
	return r.filter(limit, func(rec Record) bool {
		return (rec.Status == StatusFailed || rec.Status == StatusRetrying) && rec.RetryCount < maxRetries
	})
}

func (r *MemoryRepo) UpdateNotification(ctx context.Context, id string, status Status, messageID, errDetail string, sentAt *time.Time, latencyMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.MessageID = messageID
	rec.ErrorDetail = errDetail
	rec.SentAt = sentAt
	rec.LatencyMs = latencyMs
	r.records[id] = rec
	return nil
}

func (r *MemoryRepo) MarkRetrying(ctx context.Context, id string, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusRetrying
	rec.RetryCount = retryCount
	r.records[id] = rec
	return nil
}

// Get returns a stored record by id for test assertions.
func (r *MemoryRepo) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// All returns every record, oldest first.
func (r *MemoryRepo) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepo) filter(limit int, keep func(Record) bool) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Repository = (*MemoryRepo)(nil)
