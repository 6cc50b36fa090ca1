package dtmf

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

var (
	ErrNoActiveFlow  = errors.New("dtmf: no active input flow for call")
	ErrInvalidStages = errors.New("dtmf: invalid stage definitions")
)

// Engine drives per-call digit-collection flows.
//
// State is in-memory only: it is created by StartFlow and discarded when the
// flow completes or the reconciler clears it on a terminal status. Callers
// serialize Submit per call (one active input channel per call); calls are
// independent of each other.
type Engine struct {
	mu    sync.Mutex
	flows map[string]*flowState
}

type flowState struct {
	stages   []StageDefinition
	patterns []*regexp.Regexp

	idx      int
	attempts []int
	status   []StageStatus
	captured []string

	failed bool
}

func NewEngine() *Engine {
	return &Engine{flows: map[string]*flowState{}}
}

// StartFlow installs an ordered stage list for the call and returns the first
// stage for prompting. An existing flow for the call is replaced.
func (e *Engine) StartFlow(callID string, stages []StageDefinition) (StageDefinition, error) {
	if callID == "" || len(stages) == 0 {
		return StageDefinition{}, ErrInvalidStages
	}

	keys := make(map[string]struct{}, len(stages))
	patterns := make([]*regexp.Regexp, len(stages))
	for i, st := range stages {
		if st.Key == "" {
			return StageDefinition{}, fmt.Errorf("%w: stage %d has no key", ErrInvalidStages, i)
		}
		if _, dup := keys[st.Key]; dup {
			return StageDefinition{}, fmt.Errorf("%w: duplicate stage key %q", ErrInvalidStages, st.Key)
		}
		keys[st.Key] = struct{}{}

		if st.Pattern != "" {
			re, err := regexp.Compile(st.Pattern)
			if err != nil {
				return StageDefinition{}, fmt.Errorf("%w: stage %q pattern: %v", ErrInvalidStages, st.Key, err)
			}
			patterns[i] = re
		}
	}

	fs := &flowState{
		stages:   stages,
		patterns: patterns,
		attempts: make([]int, len(stages)),
		status:   make([]StageStatus, len(stages)),
		captured: make([]string, len(stages)),
	}
	for i := range fs.status {
		fs.status[i] = StagePending
	}

	e.mu.Lock()
	e.flows[callID] = fs
	e.mu.Unlock()

	return stages[0], nil
}

// Submit validates digits against the current stage and advances the flow on
// success. Validation failures are typed results, never errors; only a
// missing flow is an error.
func (e *Engine) Submit(callID, digits string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fs, ok := e.flows[callID]
	if !ok {
		return Result{}, ErrNoActiveFlow
	}

	stage := fs.stages[fs.idx]
	res := Result{StageKey: stage.Key}

	if fs.failed {
		res.FlowFailed = true
		return res, nil
	}

	if code, ok := validate(stage, fs.patterns[fs.idx], digits); !ok {
		fs.attempts[fs.idx]++
		res.ErrorCode = code
		if fs.attempts[fs.idx] >= stage.maxAttempts() {
			fs.status[fs.idx] = StageFailed
			fs.failed = true
			res.FlowFailed = true
			return res, nil
		}
		res.AttemptsRemaining = stage.maxAttempts() - fs.attempts[fs.idx]
		return res, nil
	}

	fs.status[fs.idx] = StageCompleted
	fs.captured[fs.idx] = digits
	res.Valid = true

	// Advance to the next pending stage; completed stages are skipped even
	// if re-visited.
	next := -1
	for i := fs.idx + 1; i < len(fs.stages); i++ {
		if fs.status[i] == StagePending {
			next = i
			break
		}
	}
	if next < 0 {
		res.FlowComplete = true
		delete(e.flows, callID)
		return res, nil
	}

	fs.idx = next
	nextStage := fs.stages[next]
	res.NextStage = &nextStage
	return res, nil
}

func validate(stage StageDefinition, pattern *regexp.Regexp, digits string) (ErrorCode, bool) {
	if digits == "" {
		return CodeNoInput, false
	}
	if stage.Length > 0 && len(digits) != stage.Length {
		return CodeLengthMismatch, false
	}
	if stage.Length == 0 {
		if stage.MinLength > 0 && len(digits) < stage.MinLength {
			return CodeTooShort, false
		}
		if stage.MaxLength > 0 && len(digits) > stage.MaxLength {
			return CodeTooLong, false
		}
	}
	if pattern != nil && !pattern.MatchString(digits) {
		return CodePatternMismatch, false
	}
	if stage.RangeMin != nil || stage.RangeMax != nil {
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return CodeRangeMismatch, false
		}
		if stage.RangeMin != nil && n < *stage.RangeMin {
			return CodeRangeMismatch, false
		}
		if stage.RangeMax != nil && n > *stage.RangeMax {
			return CodeRangeMismatch, false
		}
	}
	if len(stage.Allowed) > 0 {
		found := false
		for _, v := range stage.Allowed {
			if v == digits {
				found = true
				break
			}
		}
		if !found {
			return CodeNotAllowed, false
		}
	}
	if stage.Expected != "" && digits != stage.Expected {
		return CodeValueMismatch, false
	}
	return "", true
}

// HasUnconfirmedStages reports whether the call has an input flow with any
// stage not completed. Unreached stages count as unconfirmed: a flow
// abandoned early fails the call outcome. A call with no flow recorded has
// nothing unconfirmed.
func (e *Engine) HasUnconfirmedStages(callID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	fs, ok := e.flows[callID]
	if !ok {
		return false
	}
	for _, st := range fs.status {
		if st != StageCompleted {
			return true
		}
	}
	return false
}

// Snapshot returns the audit view of the call's flow. Sensitive stages have
// their captured digits masked.
func (e *Engine) Snapshot(callID string) ([]StageSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fs, ok := e.flows[callID]
	if !ok {
		return nil, false
	}
	out := make([]StageSnapshot, len(fs.stages))
	for i, st := range fs.stages {
		captured := fs.captured[i]
		if st.sensitive() {
			captured = Mask(captured)
		}
		out[i] = StageSnapshot{
			Key:      st.Key,
			Status:   fs.status[i],
			Attempts: fs.attempts[i],
			Captured: captured,
		}
	}
	return out, true
}

// Clear discards the call's in-memory flow state. Called by the reconciler
// when the call reaches a terminal status.
func (e *Engine) Clear(callID string) {
	e.mu.Lock()
	delete(e.flows, callID)
	e.mu.Unlock()
}
