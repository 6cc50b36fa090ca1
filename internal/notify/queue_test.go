package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

type scriptedChannel struct {
	mu    sync.Mutex
	calls int
	fail  func(call int) error
}

func (c *scriptedChannel) Send(ctx context.Context, destination string, notifType Type, payload string) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail != nil {
		if err := c.fail(c.calls); err != nil {
			return Receipt{}, err
		}
	}
	return Receipt{MessageID: fmt.Sprintf("msg-%d", c.calls), Latency: 5 * time.Millisecond}, nil
}

func newTestQueue(ch Channel) (*Queue, *MemoryRepo, *time.Time) {
	repo := NewMemoryRepo()
	q := NewQueue(repo, ch, Options{
		MaxRetries:   3,
		RetryBackoff: 10 * time.Minute,
		SendDelay:    time.Nanosecond,
	}, nil)
	now := fixedNow
	q.SetClock(func() time.Time { return now })
	return q, repo, &now
}

func TestEnqueue_Validates(t *testing.T) {
	q, _, _ := newTestQueue(&scriptedChannel{})
	ctx := context.Background()

	bad := []Record{
		{Type: TypeCallOutcome, Destination: "d"},
		{CallID: "c1", Destination: "d"},
		{CallID: "c1", Type: TypeCallOutcome},
	}
	for i, rec := range bad {
		if _, err := q.Enqueue(ctx, rec); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestEnqueue_Defaults(t *testing.T) {
	q, repo, _ := newTestQueue(&scriptedChannel{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Record{CallID: "c1", Type: TypeCallOutcome, Destination: "chat-42"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rec, ok := repo.Get(id)
	if !ok {
		t.Fatalf("record not stored")
	}
	if rec.Status != StatusPending || rec.Priority != PriorityNormal {
		t.Fatalf("unexpected defaults: %+v", rec)
	}
	if !rec.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected clock-stamped created_at, got %v", rec.CreatedAt)
	}
}

func TestDrainPending_DeliversInOrder(t *testing.T) {
	ch := &scriptedChannel{}
	q, repo, now := newTestQueue(ch)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, Record{CallID: fmt.Sprintf("c%d", i), Type: TypeCallOutcome, Destination: "chat-42"})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, id)
		*now = now.Add(time.Second)
	}

	if err := q.DrainPending(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	for i, id := range ids {
		rec, _ := repo.Get(id)
		if rec.Status != StatusSent {
			t.Fatalf("record %d not sent: %+v", i, rec)
		}
		if rec.MessageID != fmt.Sprintf("msg-%d", i+1) {
			t.Fatalf("expected oldest-first delivery, record %d got %q", i, rec.MessageID)
		}
		if rec.SentAt == nil {
			t.Fatalf("record %d missing sent_at", i)
		}
	}

	stats := q.Stats()
	if stats.Processed != 3 || stats.Successful != 3 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRetryFailed_StopsAtCeiling(t *testing.T) {
	ch := &scriptedChannel{fail: func(int) error { return errors.New("downstream unavailable") }}
	q, repo, now := newTestQueue(ch)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Record{CallID: "c1", Type: TypeCallOutcome, Destination: "chat-42"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := q.DrainPending(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	rec, _ := repo.Get(id)
	if rec.Status != StatusFailed || rec.RetryCount != 0 {
		t.Fatalf("expected initial failure, got %+v", rec)
	}

	// each retry pass advances past the backoff, up to the ceiling
	for i := 1; i <= 3; i++ {
		*now = now.Add(time.Duration(i) * 10 * time.Minute)
		if err := q.RetryFailed(ctx); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
		rec, _ = repo.Get(id)
		if rec.RetryCount != i {
			t.Fatalf("retry %d: expected retry count %d, got %d", i, i, rec.RetryCount)
		}
	}

	// ceiling reached: further passes leave the record alone
	*now = now.Add(time.Hour)
	if err := q.RetryFailed(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rec, _ = repo.Get(id)
	if rec.Status != StatusFailed || rec.RetryCount != 3 {
		t.Fatalf("expected record parked at the ceiling, got %+v", rec)
	}
	if ch.calls != 4 {
		t.Fatalf("expected 4 attempts total, got %d", ch.calls)
	}
}

func TestRetryFailed_RespectsBackoff(t *testing.T) {
	ch := &scriptedChannel{fail: func(call int) error {
		if call <= 2 {
			return errors.New("downstream unavailable")
		}
		return nil
	}}
	q, repo, now := newTestQueue(ch)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Record{CallID: "c1", Type: TypeCallOutcome, Destination: "chat-42"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.DrainPending(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// first retry is immediately eligible (retry_count was 0) and fails
	if err := q.RetryFailed(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rec, _ := repo.Get(id)
	if rec.Status != StatusFailed || rec.RetryCount != 1 {
		t.Fatalf("expected failed after first retry, got %+v", rec)
	}

	// second retry is not eligible until the backoff elapses
	*now = now.Add(5 * time.Minute)
	if err := q.RetryFailed(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ch.calls != 2 {
		t.Fatalf("expected retry deferred inside the backoff, got %d attempts", ch.calls)
	}

	*now = now.Add(10 * time.Minute)
	if err := q.RetryFailed(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rec, _ = repo.Get(id)
	if rec.Status != StatusSent {
		t.Fatalf("expected sent after backoff elapsed, got %+v", rec)
	}

	stats := q.Stats()
	if stats.Retried != 2 || stats.Successful != 1 || stats.Failed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRetryFailed_RecoversStrandedRetrying(t *testing.T) {
	ch := &scriptedChannel{fail: func(call int) error {
		if call == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	}}
	q, repo, now := newTestQueue(ch)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Record{CallID: "c1", Type: TypeCallOutcome, Destination: "chat-42"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.DrainPending(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// A crash between marking the retry and recording the attempt result
	// leaves the record parked in retrying.
	if err := repo.MarkRetrying(ctx, id, 1); err != nil {
		t.Fatalf("mark retrying: %v", err)
	}
	rec, _ := repo.Get(id)
	if rec.Status != StatusRetrying {
		t.Fatalf("expected stranded record, got %+v", rec)
	}

	*now = now.Add(10 * time.Minute)
	if err := q.RetryFailed(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}

	rec, _ = repo.Get(id)
	if rec.Status != StatusSent {
		t.Fatalf("expected stranded record re-driven to sent, got %+v", rec)
	}
	if ch.calls != 2 {
		t.Fatalf("expected one recovery attempt, got %d calls", ch.calls)
	}
}

func TestDeliver_PermanentErrorSkipsRetries(t *testing.T) {
	ch := &scriptedChannel{fail: func(int) error { return Permanent(errors.New("destination rejected")) }}
	q, repo, now := newTestQueue(ch)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Record{CallID: "c1", Type: TypeCallOutcome, Destination: "chat-42"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.DrainPending(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	rec, _ := repo.Get(id)
	if rec.Status != StatusFailed || rec.RetryCount != 3 {
		t.Fatalf("expected permanent failure to exhaust the retry budget, got %+v", rec)
	}

	*now = now.Add(time.Hour)
	if err := q.RetryFailed(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ch.calls != 1 {
		t.Fatalf("expected no retry of a permanent failure, got %d attempts", ch.calls)
	}
}

func TestQueue_StartStopIdempotent(t *testing.T) {
	q, _, _ := newTestQueue(&scriptedChannel{})
	ctx := context.Background()

	q.Start(ctx)
	q.Start(ctx)
	q.Stop()
	q.Stop()
}
