package dtmf

// StageDefinition is static per-call configuration for one unit of digit
// collection. Stage keys must be unique within a call; stage order is fixed
// at flow start and never mutated afterwards.
type StageDefinition struct {
	Key   string `json:"key"`
	Label string `json:"label"`

	// Length is the fixed expected length; 0 means variable length bounded
	// by MinLength/MaxLength (either may be 0 for unbounded).
	Length    int `json:"length,omitempty"`
	MinLength int `json:"min_length,omitempty"`
	MaxLength int `json:"max_length,omitempty"`

	// Pattern is an optional regular expression the digits must match.
	Pattern string `json:"pattern,omitempty"`

	// RangeMin/RangeMax constrain the digits interpreted as a number.
	RangeMin *int64 `json:"range_min,omitempty"`
	RangeMax *int64 `json:"range_max,omitempty"`

	// Allowed restricts input to an explicit set of values.
	Allowed []string `json:"allowed,omitempty"`

	// Expected, when set, requires an exact match (verification codes).
	Expected string `json:"expected,omitempty"`

	Prompt         string `json:"prompt,omitempty"`
	SuccessMessage string `json:"success_message,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	// MaxAttempts is the retry ceiling; 0 defaults to 3.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Sensitive stages (the default) mask captured digits in logs/audit.
	// Set to a non-nil false to opt out.
	Sensitive *bool `json:"sensitive,omitempty"`
}

func (d StageDefinition) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return d.MaxAttempts
}

func (d StageDefinition) sensitive() bool {
	return d.Sensitive == nil || *d.Sensitive
}

const defaultMaxAttempts = 3

// StageStatus is the per-stage completion state.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// ErrorCode identifies why a submission was rejected. These are expected
// validation outcomes, not errors; they drive retry prompts.
type ErrorCode string

const (
	CodeNoInput         ErrorCode = "no_input"
	CodeLengthMismatch  ErrorCode = "length_mismatch"
	CodeTooShort        ErrorCode = "too_short"
	CodeTooLong         ErrorCode = "too_long"
	CodePatternMismatch ErrorCode = "pattern_mismatch"
	CodeRangeMismatch   ErrorCode = "range_mismatch"
	CodeNotAllowed      ErrorCode = "not_allowed"
	CodeValueMismatch   ErrorCode = "value_mismatch"
)

// Result is the outcome of one submission.
type Result struct {
	// StageKey is the stage the submission applied to.
	StageKey string `json:"stage_key"`

	Valid             bool      `json:"valid"`
	ErrorCode         ErrorCode `json:"error_code,omitempty"`
	AttemptsRemaining int       `json:"attempts_remaining,omitempty"`

	// NextStage is set when the flow advanced to another pending stage.
	NextStage *StageDefinition `json:"next_stage,omitempty"`

	FlowComplete bool `json:"flow_complete,omitempty"`

	// FlowFailed means the stage exhausted its retry ceiling. The flow does
	// not advance past a failed stage; the caller decides whether to
	// abandon the call.
	FlowFailed bool `json:"flow_failed,omitempty"`
}

// StageSnapshot is the audit view of one stage: captured digits are masked
// for sensitive stages.
type StageSnapshot struct {
	Key      string      `json:"key"`
	Status   StageStatus `json:"status"`
	Attempts int         `json:"attempts"`
	Captured string      `json:"captured,omitempty"`
}
