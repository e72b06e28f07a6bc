package syncstore

import (
	"math"
	"time"

	"github.com/ValentinKolb/sKV/lib/store/oplog"
)

// Decision tells the reconciliation pass what to do with an op whose replay failed.
type Decision int

const (
	// Requeue puts the op back at the head of the queue and ends the pass.
	// Later ops are not attempted before the op succeeds (head-of-line blocking).
	Requeue Decision = iota
	// Drop discards the op, hands it to the dead letter handler and continues with the next op.
	Drop
	// Defer moves the op to the tail of the queue and continues with the next op.
	// This gives up the replication order for the op.
	Defer
)

func (d Decision) String() string {
	switch d {
	case Requeue:
		return "requeue"
	case Drop:
		return "drop"
	case Defer:
		return "defer"
	default:
		return "unknown"
	}
}

// RetryPolicy decides how the reconciliation loop reacts to failed replays.
type RetryPolicy interface {
	// OnFailure is called after the replay of op failed. attempt is the number of
	// failed replays of this op so far (starting at 1).
	OnFailure(op oplog.Op, attempt int, err error) Decision

	// NextDelay returns the time to wait before the next reconciliation pass.
	// failures is the number of consecutive passes that ended with a failure (0 after a clean pass).
	NextDelay(failures int) time.Duration
}

// --------------------------------------------------------------------------
// Fixed interval (default)
// --------------------------------------------------------------------------

// FixedInterval retries a failed op on every pass and runs the passes at a fixed interval.
// There is no backoff and no op is ever given up.
type FixedInterval struct {
	Interval time.Duration
}

func (p FixedInterval) OnFailure(oplog.Op, int, error) Decision {
	return Requeue
}

func (p FixedInterval) NextDelay(int) time.Duration {
	return p.Interval
}

// --------------------------------------------------------------------------
// Exponential backoff
// --------------------------------------------------------------------------

// ExponentialBackoff runs passes every Interval while replication succeeds and backs off
// exponentially (Initial * Multiplier^(failures-1), capped at Max) after failed passes.
// If MaxAttempts is greater than zero, an op that failed MaxAttempts times is dropped.
type ExponentialBackoff struct {
	Interval    time.Duration
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// NewExponentialBackoff creates a backoff policy with a 1s initial delay, doubling up to interval*6.
func NewExponentialBackoff(interval time.Duration, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		Interval:    interval,
		Initial:     time.Second,
		Max:         6 * interval,
		Multiplier:  2.0,
		MaxAttempts: maxAttempts,
	}
}

func (p *ExponentialBackoff) OnFailure(_ oplog.Op, attempt int, _ error) Decision {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return Drop
	}
	return Requeue
}

func (p *ExponentialBackoff) NextDelay(failures int) time.Duration {
	if failures <= 0 {
		return p.Interval
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.Initial) * math.Pow(multiplier, float64(failures-1))
	if p.Max > 0 && delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	return time.Duration(delay)
}
