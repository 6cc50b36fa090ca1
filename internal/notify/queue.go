package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"callflow-platform/internal/metrics"
)

// Options tunes the dispatch queue. Zero values get safe defaults.
type Options struct {
	DrainInterval time.Duration
	RetryInterval time.Duration
	BatchLimit    int

	// SendDelay is the pause between messages in one drain batch, to avoid
	// destination rate-limiting.
	SendDelay time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	out := o
	if out.DrainInterval <= 0 {
		out.DrainInterval = 10 * time.Second
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = 5 * time.Minute
	}
	if out.BatchLimit <= 0 {
		out.BatchLimit = 10
	}
	if out.SendDelay <= 0 {
		out.SendDelay = 500 * time.Millisecond
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = 10 * time.Minute
	}
	return out
}

// Stats are delivery counters for the health-check read.
type Stats struct {
	Processed  int64 `json:"processed"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
}

// Queue dispatches notification records through a delivery channel with
// at-least-once semantics: pending records are drained on a short interval,
// failed ones re-attempted on a longer one until the retry ceiling.
//
// The queue is an explicitly constructed component with a Start/Stop
// lifecycle; nothing here is a package-level singleton.
type Queue struct {
	repo    Repository
	channel Channel
	opts    Options
	clock   func() time.Time
	log     *slog.Logger

	mu    sync.Mutex
	stats Stats

	lifecycleMu sync.Mutex
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewQueue(repo Repository, channel Channel, opts Options, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		repo:    repo,
		channel: channel,
		opts:    opts.withDefaults(),
		clock:   time.Now,
		log:     log,
	}
}

// SetClock makes scheduling deterministic in tests.
func (q *Queue) SetClock(clock func() time.Time) { q.clock = clock }

// Enqueue persists a pending record and returns its id.
func (q *Queue) Enqueue(ctx context.Context, rec Record) (string, error) {
	if rec.CallID == "" || rec.Type == "" || rec.Destination == "" {
		return "", ErrInvalidArgument
	}
	if rec.Priority == "" {
		rec.Priority = PriorityNormal
	}
	rec.Status = StatusPending
	rec.RetryCount = 0
	rec.CreatedAt = q.clock().UTC()
	return q.repo.EnqueueNotification(ctx, rec)
}

// Start launches the drain and retry loops. Call Stop to halt; any in-flight
// batch finishes before Stop returns.
func (q *Queue) Start(ctx context.Context) {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if q.stopCh != nil {
		return
	}
	q.stopCh = make(chan struct{})

	q.wg.Add(2)
	go q.loop(ctx, q.opts.DrainInterval, q.DrainPending)
	go q.loop(ctx, q.opts.RetryInterval, q.RetryFailed)
}

// Stop signals the loops and waits for them to finish their current batch.
func (q *Queue) Stop() {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if q.stopCh == nil {
		return
	}
	close(q.stopCh)
	q.wg.Wait()
	q.stopCh = nil
}

// Stats returns a snapshot of the delivery counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) loop(ctx context.Context, interval time.Duration, tick func(context.Context) error) {
	defer q.wg.Done()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if err := tick(ctx); err != nil {
				q.log.Error("dispatch tick failed", "err", err)
			}
		}
	}
}

// DrainPending fetches one batch of oldest-pending records and attempts
// delivery in order. Only storage errors are returned; per-record delivery
// failures are persisted on the record.
func (q *Queue) DrainPending(ctx context.Context) error {
	batch, err := q.repo.FetchPendingNotifications(ctx, q.opts.BatchLimit)
	if err != nil {
		return err
	}
	for i, rec := range batch {
		if i > 0 {
			if stopped := q.sleep(ctx, q.opts.SendDelay); stopped {
				return nil
			}
		}
		if err := q.deliver(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// RetryFailed re-attempts failed records under the retry ceiling whose
// backoff has elapsed. Eligibility: created_at + retry_count * backoff.
// The scan also picks up records stuck in retrying, so an attempt whose
// process died before recording its result is re-driven on the next tick.
func (q *Queue) RetryFailed(ctx context.Context) error {
	batch, err := q.repo.FetchFailedRetryable(ctx, q.opts.BatchLimit, q.opts.MaxRetries)
	if err != nil {
		return err
	}
	now := q.clock().UTC()
	for _, rec := range batch {
		eligible := rec.CreatedAt.Add(time.Duration(rec.RetryCount) * q.opts.RetryBackoff)
		if now.Before(eligible) {
			continue
		}
		rec.RetryCount++
		if err := q.repo.MarkRetrying(ctx, rec.ID, rec.RetryCount); err != nil {
			return err
		}
		q.count(func(s *Stats) { s.Retried++ })
		if err := q.deliver(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) deliver(ctx context.Context, rec Record) error {
	q.count(func(s *Stats) { s.Processed++ })

	start := q.clock()
	receipt, sendErr := q.channel.Send(ctx, rec.Destination, rec.Type, rec.Payload)
	elapsed := q.clock().Sub(start)
	metrics.NotificationDeliverySeconds.Observe(elapsed.Seconds())

	if sendErr != nil {
		q.count(func(s *Stats) { s.Failed++ })
		metrics.NotificationsFailedTotal.Inc()
		q.log.Warn("notification delivery failed",
			"id", rec.ID,
			"call_id", rec.CallID,
			"type", string(rec.Type),
			"retry_count", rec.RetryCount,
			"permanent", IsPermanent(sendErr),
			"err", sendErr,
		)
		if IsPermanent(sendErr) && rec.RetryCount < q.opts.MaxRetries {
			// Exhaust the retry budget up front; a destination-level
			// rejection will not succeed on retry.
			if err := q.repo.MarkRetrying(ctx, rec.ID, q.opts.MaxRetries); err != nil {
				return err
			}
		}
		return q.repo.UpdateNotification(ctx, rec.ID, StatusFailed, "", sendErr.Error(), nil, 0)
	}

	q.count(func(s *Stats) { s.Successful++ })
	metrics.NotificationsSentTotal.Inc()

	sentAt := q.clock().UTC()
	latency := receipt.Latency
	if latency <= 0 {
		latency = elapsed
	}
	return q.repo.UpdateNotification(ctx, rec.ID, StatusSent, receipt.MessageID, "", &sentAt, latency.Milliseconds())
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) (stopped bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-ctx.Done():
		return true
	case <-q.stopCh:
		return true
	}
}

func (q *Queue) count(fn func(*Stats)) {
	q.mu.Lock()
	fn(&q.stats)
	q.mu.Unlock()
}
