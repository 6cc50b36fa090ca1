package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Receipt is the channel's acknowledgment of one delivered message.
type Receipt struct {
	MessageID string
	Latency   time.Duration
}

// Channel is the external delivery collaborator. The queue never renders
// human-facing text; it hands the notification type and payload to the
// channel, which owns templating.
type Channel interface {
	Send(ctx context.Context, destination string, notifType Type, payload string) (Receipt, error)
}

// permanentError marks a delivery failure that will not succeed on retry
// (invalid destination, permanently rejected). The queue stops retrying
// these immediately instead of burning the retry budget.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked non-retryable by a channel.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// LogChannel is a stand-in delivery channel that writes notifications to the
// structured log. Used in local/dev environments where no real channel is
// configured; the queue contract (receipts, latency) is still exercised.
type LogChannel struct {
	log   *slog.Logger
	clock func() time.Time
	seq   func() string
}

func NewLogChannel(log *slog.Logger, id func() string) *LogChannel {
	return &LogChannel{log: log, clock: time.Now, seq: id}
}

func (c *LogChannel) Send(ctx context.Context, destination string, notifType Type, payload string) (Receipt, error) {
	if destination == "" {
		return Receipt{}, Permanent(errors.New("empty destination"))
	}
	start := c.clock()
	c.log.Info("notification delivered",
		"destination", destination,
		"type", string(notifType),
		"payload", payload,
	)
	return Receipt{MessageID: c.seq(), Latency: c.clock().Sub(start)}, nil
}

var _ Channel = (*LogChannel)(nil)
