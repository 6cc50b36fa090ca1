package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"callflow-platform/internal/dedup"
	"callflow-platform/internal/dtmf"
	"callflow-platform/internal/hints"
	"callflow-platform/internal/notify"
	"callflow-platform/internal/session"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

type fixture struct {
	svc      *Service
	sessions *session.MemoryRepo
	notifs   *notify.MemoryRepo
	input    *dtmf.Engine
	now      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := fixedNow
	clock := func() time.Time { return now }

	sessions := session.NewMemoryRepo()
	sessions.SetClock(clock)

	window := dedup.NewMemoryWindow(5 * time.Minute)
	window.SetClock(clock)

	notifs := notify.NewMemoryRepo()
	queue := notify.NewQueue(notifs, notify.NewLogChannel(slog.Default(), func() string { return "m-1" }), notify.Options{}, nil)
	queue.SetClock(clock)

	input := dtmf.NewEngine()
	detector := hints.NewDetector(sessions, queue, nil)

	svc := NewService(sessions, window, input, detector, queue, Options{DedupBucket: 5 * time.Second}, nil)
	svc.SetClock(clock)

	f := &fixture{svc: svc, sessions: sessions, notifs: notifs, input: input, now: &now}
	return f
}

func (f *fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

func (f *fixture) notificationsOfType(typ notify.Type) []notify.Record {
	out := make([]notify.Record, 0)
	for _, rec := range f.notifs.All() {
		if rec.Type == typ {
			out = append(out, rec)
		}
	}
	return out
}

func TestIngest_RequiresCallIDAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, IngestRequest{RawStatus: "ringing"}); err == nil {
		t.Fatalf("expected error for missing call id")
	}
	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1"}); err == nil {
		t.Fatalf("expected error for missing status")
	}
}

func TestIngest_DuplicateWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "ringing"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("first event must be accepted")
	}

	// retransmission two seconds later lands in the same bucket
	f.advance(2 * time.Second)
	res, err = f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "ringing"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Accepted {
		t.Fatalf("retransmission must be suppressed")
	}

	if n := len(f.sessions.EventsFor("c1")); n != 1 {
		t.Fatalf("duplicate must not append an event, got %d", n)
	}
}

func TestIngest_SameStatusLaterIsAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "ringing"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	f.advance(time.Minute)
	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "ringing"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("same status in a later bucket is a real event")
	}
}

func TestIngest_CallLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []IngestRequest{
		{CallID: "c1", RawStatus: "initiated", NotifyDestination: "chat-42"},
		{CallID: "c1", RawStatus: "ringing"},
		{CallID: "c1", RawStatus: "answered", AnsweredBy: "human"},
		{CallID: "c1", RawStatus: "in-progress"},
	}
	for _, req := range steps {
		res, err := f.svc.Ingest(ctx, req)
		if err != nil {
			t.Fatalf("ingest %s: %v", req.RawStatus, err)
		}
		if !res.Accepted || res.IsTerminal {
			t.Fatalf("ingest %s: unexpected result %+v", req.RawStatus, res)
		}
		f.advance(10 * time.Second)
	}

	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "completed"})
	if err != nil {
		t.Fatalf("ingest completed: %v", err)
	}
	if !res.IsTerminal || res.Outcome == nil {
		t.Fatalf("expected terminal result with outcome, got %+v", res)
	}
	if !res.Outcome.Success || res.Outcome.Reason != session.ReasonCompleted {
		t.Fatalf("expected successful outcome, got %+v", res.Outcome)
	}
	if res.Outcome.DurationSeconds != 40 {
		t.Fatalf("expected 40s duration, got %d", res.Outcome.DurationSeconds)
	}

	s, err := f.sessions.GetCall(ctx, "c1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if s.Status != session.StatusCompleted || !s.OutcomeSuccess || s.EndedAt == nil {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.AnsweredBy != session.AnsweredByHuman {
		t.Fatalf("expected human classification, got %q", s.AnsweredBy)
	}

	// human answer emits caller_listening once; terminal emits the outcome
	if n := len(f.notificationsOfType(notify.TypeCallerListening)); n != 1 {
		t.Fatalf("expected one caller_listening, got %d", n)
	}
	outcomes := f.notificationsOfType(notify.TypeCallOutcome)
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome notification, got %d", len(outcomes))
	}
	var payload struct {
		CallID  string `json:"call_id"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(outcomes[0].Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.CallID != "c1" || !payload.Success {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if n := len(f.sessions.EventsFor("c1")); n != 5 {
		t.Fatalf("expected 5 event rows, got %d", n)
	}
}

func TestIngest_TerminalIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "completed", NotifyDestination: "chat-42"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	f.advance(time.Minute)
	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "failed"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Accepted || res.Status != session.StatusCompleted {
		t.Fatalf("late event must not move a terminal session, got %+v", res)
	}

	s, err := f.sessions.GetCall(ctx, "c1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if s.Status != session.StatusCompleted {
		t.Fatalf("terminal status mutated to %q", s.Status)
	}

	// the late event is still kept for audit
	if n := len(f.sessions.EventsFor("c1")); n != 2 {
		t.Fatalf("expected 2 event rows, got %d", n)
	}
	// but only one outcome notification was produced
	if n := len(f.notificationsOfType(notify.TypeCallOutcome)); n != 1 {
		t.Fatalf("expected one outcome notification, got %d", n)
	}
}

func TestIngest_TerminalEvictsLockEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "ringing"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	f.svc.mu.Lock()
	_, ok := f.svc.locks["c1"]
	f.svc.mu.Unlock()
	if !ok {
		t.Fatalf("expected lock entry for live call")
	}

	f.advance(time.Minute)
	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "completed"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	f.svc.mu.Lock()
	_, ok = f.svc.locks["c1"]
	f.svc.mu.Unlock()
	if ok {
		t.Fatalf("expected lock entry evicted after terminal status")
	}
}

func TestIngest_ConcurrentTerminalEventsSingleOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Distinct raw statuses so the dedup window does not collapse them; only
	// one may win the terminal transition.
	var wg sync.WaitGroup
	for _, raw := range []string{"completed", "failed", "canceled"} {
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: raw, NotifyDestination: "chat-42"}); err != nil {
				t.Errorf("ingest %s: %v", raw, err)
			}
		}(raw)
	}
	wg.Wait()

	s, err := f.sessions.GetCall(ctx, "c1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if !session.IsTerminal(s.Status) {
		t.Fatalf("expected terminal status, got %q", s.Status)
	}
	if n := len(f.notificationsOfType(notify.TypeCallOutcome)); n != 1 {
		t.Fatalf("expected exactly one outcome notification, got %d", n)
	}
	if n := len(f.sessions.EventsFor("c1")); n != 3 {
		t.Fatalf("expected all 3 events appended, got %d", n)
	}
}

func TestIngest_UnconfirmedInputFailsOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "answered", AnsweredBy: "human", NotifyDestination: "chat-42"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := f.input.StartFlow("c1", []dtmf.StageDefinition{{Key: "confirm", Expected: "1234"}}); err != nil {
		t.Fatalf("start flow: %v", err)
	}

	f.advance(time.Minute)
	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "completed"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Success {
		t.Fatalf("expected failed outcome, got %+v", res.Outcome)
	}
	if res.Outcome.Reason != session.ReasonInputValidationFailed {
		t.Fatalf("expected input_validation_failed, got %q", res.Outcome.Reason)
	}

	// flow state was cleared with the terminal status
	if f.input.HasUnconfirmedStages("c1") {
		t.Fatalf("expected input state cleared on terminal status")
	}
}

func TestIngest_CompletedInputSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "answered", AnsweredBy: "human", NotifyDestination: "chat-42"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := f.input.StartFlow("c1", []dtmf.StageDefinition{{Key: "confirm", Expected: "1234"}}); err != nil {
		t.Fatalf("start flow: %v", err)
	}
	if _, err := f.input.Submit("c1", "1234"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.advance(time.Minute)
	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "completed"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome == nil || !res.Outcome.Success {
		t.Fatalf("expected successful outcome, got %+v", res.Outcome)
	}
}

func TestIngest_FailureReasonPassesThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, IngestRequest{
		CallID:            "c1",
		RawStatus:         "failed",
		FailureReason:     "provider_error_30008",
		NotifyDestination: "chat-42",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Reason != "provider_error_30008" {
		t.Fatalf("expected provider failure reason, got %+v", res.Outcome)
	}
}

func TestIngest_BusyAndNoAnswerReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, IngestRequest{CallID: "c1", RawStatus: "busy", NotifyDestination: "chat-42"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Reason != session.ReasonBusy || res.Outcome.Success {
		t.Fatalf("unexpected busy outcome %+v", res.Outcome)
	}

	res, err = f.svc.Ingest(ctx, IngestRequest{CallID: "c2", RawStatus: "no-answer", NotifyDestination: "chat-42"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome == nil || res.Outcome.Reason != session.ReasonNoAnswer {
		t.Fatalf("unexpected no-answer outcome %+v", res.Outcome)
	}
}
