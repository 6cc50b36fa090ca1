package reporting

import (
	"context"
	"errors"
	"time"

	"callflow-platform/internal/session"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service aggregates stored call sessions for the admin surface.
// Reads only; the reconciler owns all writes.
type Service struct {
	repo session.Repository
}

func NewService(repo session.Repository) *Service { return &Service{repo: repo} }

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
}

type CallsSummary struct {
	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	SuccessfulOutcomes int `json:"successful_outcomes"`

	MachineAnswered int `json:"machine_answered"`
	HumanAnswered   int `json:"human_answered"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.OutcomeSuccess {
			out.SuccessfulOutcomes++
		}
		switch c.AnsweredBy {
		case session.AnsweredByMachine:
			out.MachineAnswered++
		case session.AnsweredByHuman:
			out.HumanAnswered++
		}
		switch c.Status {
		case session.StatusCompleted:
			out.CompletedCalls++
		case session.StatusFailed:
			out.FailedCalls++
		case session.StatusNoAnswer:
			out.NoAnswerCalls++
		case session.StatusBusy:
			out.BusyCalls++
		case session.StatusCanceled:
			out.CanceledCalls++
		case session.StatusAnswered, session.StatusInProgress:
			out.InProgressCalls++
		case session.StatusInitiated, session.StatusRinging:
			// not counted separately
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}
