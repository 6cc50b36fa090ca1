package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory session repository for tests and early
// development. It mirrors PostgresRepo behavior, including create-on-upsert.
type MemoryRepo struct {
	mu sync.Mutex

	calls  map[string]CallSession
	Events []WebhookEvent

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]CallSession{}, clock: time.Now}
}

// SetClock makes timestamps deterministic in tests.
func (r *MemoryRepo) SetClock(clock func() time.Time) { r.clock = clock }

func (r *MemoryRepo) GetCall(ctx context.Context, callID string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.calls[callID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) UpsertCall(ctx context.Context, callID string, up Update) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	s, ok := r.calls[callID]
	if !ok {
		s = CallSession{
			CallID:     callID,
			Status:     StatusInitiated,
			AnsweredBy: AnsweredByUnknown,
			StartedAt:  now,
			CreatedAt:  now,
		}
	}
	up.apply(&s, now)
	r.calls[callID] = s
	return s, nil
}

func (r *MemoryRepo) AppendEvent(ctx context.Context, e WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.Events = append(r.Events, e)
	return nil
}

func (r *MemoryRepo) ListCalls(ctx context.Context, from, to time.Time) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallSession, 0)
	for _, s := range r.calls {
		if s.CreatedAt.Before(from) || !s.CreatedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// EventsFor returns the appended events for one call, oldest first.
func (r *MemoryRepo) EventsFor(callID string) []WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WebhookEvent, 0)
	for _, e := range r.Events {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out
}

var _ Repository = (*MemoryRepo)(nil)
