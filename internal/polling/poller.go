// Package polling drives job status polling against an eventually-consistent
// backend until a terminal state, stability threshold, or timeout is reached.
package polling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Status is a backend-assigned job status code. The numeric values are
// protocol-fixed; do not renumber.
type Status int

const (
	StatusSuccess        Status = 10
	StatusProcessing     Status = 20
	StatusFailed         Status = 30
	StatusPostProcessing Status = 42
	StatusFinalizing     Status = 45
	StatusCompleted      Status = 50
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusProcessing:
		return "PROCESSING"
	case StatusFailed:
		return "FAILED"
	case StatusPostProcessing:
		return "POST_PROCESSING"
	case StatusFinalizing:
		return "FINALIZING"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("STATUS_%d", int(s))
	}
}

// Snapshot is one observation of a job. A fetch that finds the job id not
// yet indexed must report StatusProcessing with ItemCount 0 rather than an
// error; brief invisibility right after submission is expected.
type Snapshot struct {
	Status    Status
	ItemCount int
	FailCode  string
	Payload   map[string]any
}

// FetchFunc performs exactly one backend status query.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// Config bounds one polling run. StableRounds is the number of consecutive
// observations with ItemCount >= ExpectedItems after which the job is
// treated as effectively complete even though the status code has not
// flipped; it trades tail latency against certainty and stays configurable
// for that reason.
type Config struct {
	MaxAttempts   int
	Interval      time.Duration
	ExpectedItems int
	StableRounds  int
	Timeout       time.Duration
}

// Result is the outcome of a completed polling run.
type Result struct {
	Snapshot Snapshot
	Attempts int
	Elapsed  time.Duration
	// Stabilized reports completion via the item-count heuristic rather
	// than a terminal status code.
	Stabilized bool
}

// JobFailedError carries the backend fail code verbatim.
type JobFailedError struct {
	FailCode string
	Snapshot Snapshot
}

func (e *JobFailedError) Error() string {
	if e.FailCode == "" {
		return "job failed"
	}
	return "job failed: fail_code=" + e.FailCode
}

// TimeoutError reports attempt or deadline exhaustion without a terminal
// status; the job may still complete backend-side, so callers can re-poll.
type TimeoutError struct {
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("polling timed out after %d attempts (%s)", e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// Poller runs one job's polling loop. One instance per job; instances share
// no state.
type Poller struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a poller, normalizing non-positive config fields.
func New(log *slog.Logger, cfg Config) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 900
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.ExpectedItems <= 0 {
		cfg.ExpectedItems = 1
	}
	if cfg.StableRounds <= 0 {
		cfg.StableRounds = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	return &Poller{cfg: cfg, logger: log.With(slog.String("component", "poller"))}
}

// Poll invokes fetch at a fixed cadence until the job reaches SUCCESS or
// FAILED, the stability threshold is hit, or attempts/time run out. The
// cadence is deliberately not exponential: completion time is dominated by
// backend compute, so a fixed interval minimizes added latency per request.
func (p *Poller) Poll(ctx context.Context, fetch FetchFunc) (Result, error) {
	start := time.Now()
	stable := 0
	var last Snapshot

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Snapshot: last, Attempts: attempt - 1, Elapsed: time.Since(start)}, err
		}

		snap, err := fetch(ctx)
		if err != nil {
			return Result{Snapshot: last, Attempts: attempt, Elapsed: time.Since(start)}, err
		}
		last = snap

		switch snap.Status {
		case StatusSuccess:
			return Result{Snapshot: snap, Attempts: attempt, Elapsed: time.Since(start)}, nil
		case StatusFailed:
			return Result{Snapshot: snap, Attempts: attempt, Elapsed: time.Since(start)},
				&JobFailedError{FailCode: snap.FailCode, Snapshot: snap}
		}

		if snap.ItemCount >= p.cfg.ExpectedItems {
			stable++
			if stable >= p.cfg.StableRounds {
				p.logger.Debug("job stabilized before terminal status",
					slog.Int("attempt", attempt),
					slog.Int("item_count", snap.ItemCount),
					slog.String("status", snap.Status.String()))
				return Result{Snapshot: snap, Attempts: attempt, Elapsed: time.Since(start), Stabilized: true}, nil
			}
		} else {
			stable = 0
		}

		elapsed := time.Since(start)
		if elapsed > p.cfg.Timeout {
			return Result{Snapshot: snap, Attempts: attempt, Elapsed: elapsed},
				&TimeoutError{Attempts: attempt, Elapsed: elapsed}
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Snapshot: snap, Attempts: attempt, Elapsed: time.Since(start)}, ctx.Err()
		case <-timer.C:
		}
	}

	elapsed := time.Since(start)
	return Result{Snapshot: last, Attempts: p.cfg.MaxAttempts, Elapsed: elapsed},
		&TimeoutError{Attempts: p.cfg.MaxAttempts, Elapsed: elapsed}
}
