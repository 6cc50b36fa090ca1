// Package hints converts low-level provider signals into one-time,
// user-facing call hints (machine answered, caller listening, input
// detected). Hints are delivered through the notification queue.
package hints

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"callflow-platform/internal/notify"
	"callflow-platform/internal/session"
)

// Hint types, mirrored as notification types.
const (
	HintMachineDetected = notify.TypeMachineDetected
	HintCallerListening = notify.TypeCallerListening
	HintInputDetected   = notify.TypeInputDetected
)

// CallLookup resolves the call record for destination lookup.
type CallLookup interface {
	GetCall(ctx context.Context, callID string) (session.CallSession, error)
}

// Enqueuer accepts hint notifications; satisfied by *notify.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, rec notify.Record) (string, error)
}

type hintState struct {
	lastStatus  session.CanonicalStatus
	answeredBy  session.AnsweredBy
	keypadCount int
	emitted     map[notify.Type]bool
}

// Detector holds per-call in-memory hint state. Each hint type is emitted at
// most once per call; repeats are silently skipped. State is created lazily
// on first event and discarded on terminal status.
type Detector struct {
	mu    sync.Mutex
	calls map[string]*hintState

	lookup CallLookup
	queue  Enqueuer
	log    *slog.Logger
}

func NewDetector(lookup CallLookup, queue Enqueuer, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		calls:  map[string]*hintState{},
		lookup: lookup,
		queue:  queue,
		log:    log,
	}
}

// OnStatus observes a canonical status update for the call. Side-effecting
// only; emission failures are logged, never returned.
func (d *Detector) OnStatus(ctx context.Context, callID string, status session.CanonicalStatus, answeredBy session.AnsweredBy) {
	if session.IsTerminal(status) {
		d.Clear(callID)
		return
	}

	st := d.state(callID)
	d.mu.Lock()
	st.lastStatus = status
	if answeredBy != session.AnsweredByUnknown {
		st.answeredBy = answeredBy
	}
	effective := st.answeredBy
	d.mu.Unlock()

	answered := status == session.StatusAnswered || status == session.StatusInProgress
	if !answered && answeredBy == session.AnsweredByUnknown {
		return
	}

	switch effective {
	case session.AnsweredByMachine:
		d.emit(ctx, callID, st, HintMachineDetected, notify.PriorityHigh)
	case session.AnsweredByHuman:
		d.emit(ctx, callID, st, HintCallerListening, notify.PriorityNormal)
	}
}

// OnKeypad observes one keypad event. Digits imply a human pressed a key, so
// caller_listening is emitted first if still outstanding, then
// input_detected; both at most once per call.
func (d *Detector) OnKeypad(ctx context.Context, callID string) {
	st := d.state(callID)

	d.mu.Lock()
	st.keypadCount++
	d.mu.Unlock()

	d.emit(ctx, callID, st, HintCallerListening, notify.PriorityNormal)
	d.emit(ctx, callID, st, HintInputDetected, notify.PriorityHigh)
}

// Clear discards the call's hint state.
func (d *Detector) Clear(callID string) {
	d.mu.Lock()
	delete(d.calls, callID)
	d.mu.Unlock()
}

func (d *Detector) state(callID string) *hintState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.calls[callID]
	if !ok {
		st = &hintState{answeredBy: session.AnsweredByUnknown, emitted: map[notify.Type]bool{}}
		d.calls[callID] = st
	}
	return st
}

func (d *Detector) emit(ctx context.Context, callID string, st *hintState, hint notify.Type, prio notify.Priority) {
	d.mu.Lock()
	if st.emitted[hint] {
		d.mu.Unlock()
		return
	}
	// Marked before enqueue so a failed enqueue cannot cause a repeat; hint
	// emission is at-most-once, not retried.
	st.emitted[hint] = true
	keypadCount := st.keypadCount
	d.mu.Unlock()

	call, err := d.lookup.GetCall(ctx, callID)
	if err != nil {
		d.log.Warn("hint skipped, call lookup failed", "call_id", callID, "hint", string(hint), "err", err)
		return
	}
	if call.NotifyDestination == "" {
		d.log.Warn("hint skipped, call has no destination", "call_id", callID, "hint", string(hint))
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"call_id":      callID,
		"hint":         string(hint),
		"keypad_count": keypadCount,
	})

	if _, err := d.queue.Enqueue(ctx, notify.Record{
		CallID:      callID,
		Type:        hint,
		Payload:     string(payload),
		Destination: call.NotifyDestination,
		Priority:    prio,
	}); err != nil {
		d.log.Error("hint enqueue failed", "call_id", callID, "hint", string(hint), "err", err)
	}
}
