// Package reconcile ingests provider status webhooks and maintains the
// canonical per-call session state.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callflow-platform/internal/dedup"
	"callflow-platform/internal/dtmf"
	"callflow-platform/internal/hints"
	"callflow-platform/internal/notify"
	"callflow-platform/internal/session"
)

// IngestRequest is one provider status event.
type IngestRequest struct {
	CallID    string
	RawStatus string

	// AnsweredBy is the provider's answering-machine-detection value, if any.
	AnsweredBy string

	// FailureReason is the provider-supplied failure detail for failed calls.
	FailureReason string

	// NotifyDestination, when present, is recorded on the session for later
	// notification delivery (typically carried on the first event).
	NotifyDestination string

	// RawPayload is the serialized provider payload, kept for audit.
	RawPayload string
}

// IngestResult reports how the event was absorbed.
type IngestResult struct {
	// Accepted is false for duplicates within the dedup window; duplicates
	// have no side effects.
	Accepted bool `json:"accepted"`

	Status     session.CanonicalStatus `json:"status"`
	IsTerminal bool                    `json:"is_terminal"`

	// Outcome is set when this event drove the session to a terminal status.
	Outcome *session.Outcome `json:"outcome,omitempty"`
}

// Options tunes the reconciler.
type Options struct {
	// DedupBucket quantizes event timestamps before signing.
	DedupBucket time.Duration
}

// Service reconciles provider events into session state. It serializes
// processing per call: the dedup check and the persistence writes happen
// inside one per-call critical section, so two terminal writes cannot race.
// Events for different calls proceed concurrently.
type Service struct {
	repo   session.Repository
	window dedup.Window
	input  *dtmf.Engine
	hints  *hints.Detector
	queue  *notify.Queue

	opts  Options
	clock func() time.Time
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo session.Repository, window dedup.Window, input *dtmf.Engine, det *hints.Detector, queue *notify.Queue, opts Options, log *slog.Logger) *Service {
	if opts.DedupBucket <= 0 {
		opts.DedupBucket = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:   repo,
		window: window,
		input:  input,
		hints:  det,
		queue:  queue,
		opts:   opts,
		clock:  time.Now,
		log:    log,
	}
}

// SetClock makes timestamps deterministic in tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Ingest absorbs one provider status event.
//
// Failure semantics: only storage failures are returned (retryable by the
// caller). Hint and notification errors are logged and isolated; they never
// fail ingestion.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if req.CallID == "" || req.RawStatus == "" {
		return IngestResult{}, fmt.Errorf("reconcile: call id and status are required")
	}

	unlock := s.lockCall(req.CallID)
	releaseEntry := false
	defer func() {
		// The entry is deleted only after the mutex is released; deleting it
		// inside the critical section would let a concurrent Ingest mint a
		// fresh mutex and enter before this one returns.
		unlock()
		if releaseEntry {
			s.releaseLockEntry(req.CallID)
		}
	}()

	now := s.clock().UTC()

	sig := dedup.Signature(req.CallID, req.RawStatus, now, s.opts.DedupBucket)
	first, err := s.window.Observe(ctx, sig)
	if err != nil {
		// Fail open: a broken dedup backend must not drop real events.
		s.log.Error("dedup window unavailable, treating event as first sighting", "call_id", req.CallID, "err", err)
		first = true
	}

	canonical := session.Canonicalize(req.RawStatus)
	if !first {
		return IngestResult{Accepted: false, Status: canonical, IsTerminal: session.IsTerminal(canonical)}, nil
	}

	existing, err := s.repo.GetCall(ctx, req.CallID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return IngestResult{}, err
	}

	// Terminal monotonicity: a session that already ended never moves again.
	// The late event is still appended for audit.
	if err == nil && session.IsTerminal(existing.Status) {
		if appendErr := s.repo.AppendEvent(ctx, session.WebhookEvent{
			CallID:     req.CallID,
			Status:     canonical,
			RawPayload: req.RawPayload,
			ReceivedAt: now,
		}); appendErr != nil {
			return IngestResult{}, appendErr
		}
		s.log.Debug("event after terminal status ignored", "call_id", req.CallID, "status", string(canonical))
		return IngestResult{
			Accepted:   true,
			Status:     existing.Status,
			IsTerminal: true,
		}, nil
	}

	if err := s.repo.AppendEvent(ctx, session.WebhookEvent{
		CallID:     req.CallID,
		Status:     canonical,
		RawPayload: req.RawPayload,
		ReceivedAt: now,
	}); err != nil {
		return IngestResult{}, err
	}

	up := session.Update{
		Status:       &canonical,
		NativeStatus: &req.RawStatus,
	}
	answeredBy := session.ParseAnsweredBy(req.AnsweredBy)
	if answeredBy != session.AnsweredByUnknown {
		up.AnsweredBy = &answeredBy
	}
	if req.NotifyDestination != "" {
		up.NotifyDestination = &req.NotifyDestination
	}

	if !session.IsTerminal(canonical) {
		updated, err := s.repo.UpsertCall(ctx, req.CallID, up)
		if err != nil {
			return IngestResult{}, err
		}
		s.hints.OnStatus(ctx, req.CallID, canonical, updated.AnsweredBy)
		return IngestResult{Accepted: true, Status: canonical}, nil
	}

	outcome := s.computeOutcome(req, canonical, existing, now)

	up.EndedAt = &now
	up.DurationSeconds = &outcome.DurationSeconds
	up.OutcomeSuccess = &outcome.Success
	up.OutcomeReason = &outcome.Reason
	up.OutcomeCompletedAt = &outcome.CompletedAt

	if _, err := s.repo.UpsertCall(ctx, req.CallID, up); err != nil {
		return IngestResult{}, err
	}

	dest := existing.NotifyDestination
	if req.NotifyDestination != "" {
		dest = req.NotifyDestination
	}
	s.notifyOutcome(ctx, req.CallID, dest, outcome)

	// Terminal: in-memory per-call state is released. The dedup entry
	// expires on its own TTL; the lock entry goes on the deferred unlock.
	s.input.Clear(req.CallID)
	s.hints.Clear(req.CallID)
	releaseEntry = true

	return IngestResult{
		Accepted:   true,
		Status:     canonical,
		IsTerminal: true,
		Outcome:    &outcome,
	}, nil
}

func (s *Service) computeOutcome(req IngestRequest, status session.CanonicalStatus, existing session.CallSession, now time.Time) session.Outcome {
	out := session.Outcome{CompletedAt: now}

	if !existing.StartedAt.IsZero() {
		out.DurationSeconds = int(now.Sub(existing.StartedAt) / time.Second)
	}

	switch status {
	case session.StatusCompleted:
		if s.input.HasUnconfirmedStages(req.CallID) {
			out.Reason = session.ReasonInputValidationFailed
		} else {
			out.Success = true
			out.Reason = session.ReasonCompleted
		}
	case session.StatusFailed:
		if req.FailureReason != "" {
			out.Reason = req.FailureReason
		} else {
			out.Reason = session.ReasonProviderFailure
		}
	default:
		out.Reason = session.TerminalReason(status)
	}
	return out
}

func (s *Service) notifyOutcome(ctx context.Context, callID, destination string, outcome session.Outcome) {
	if destination == "" {
		s.log.Warn("outcome notification skipped, call has no destination", "call_id", callID)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"call_id":          callID,
		"success":          outcome.Success,
		"reason":           outcome.Reason,
		"duration_seconds": outcome.DurationSeconds,
	})

	if _, err := s.queue.Enqueue(ctx, notify.Record{
		CallID:      callID,
		Type:        notify.TypeCallOutcome,
		Payload:     string(payload),
		Destination: destination,
		Priority:    notify.PriorityNormal,
	}); err != nil {
		s.log.Error("outcome notification enqueue failed", "call_id", callID, "err", err)
	}
}

// lockCall acquires the per-call critical section, creating the lock entry on
// first use. Entries are released when the call reaches a terminal status.
func (s *Service) lockCall(callID string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = map[string]*sync.Mutex{}
	}
	l, ok := s.locks[callID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[callID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) releaseLockEntry(callID string) {
	s.mu.Lock()
	delete(s.locks, callID)
	s.mu.Unlock()
}
