// Package poll drives repeated GetStatement calls for one reference code
// until the statement is ready, the attempt budget is spent, or the service
// reports a terminal failure. The loop is an explicit state machine with
// injectable fetch and sleep so it can run against scripted sequences in
// tests.
package poll

import (
	"context"
	"fmt"
	"time"

	"flexfetch/internal/flexws"
	"flexfetch/internal/model"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxAttempts = 20
)

type Fetcher interface {
	Fetch(ctx context.Context, referenceCode string) (flexws.FetchResult, error)
}

type Options struct {
	// Interval between attempts. The first attempt waits half of it; the
	// statement is almost never ready immediately after submit.
	Interval    time.Duration
	MaxAttempts int
	// Sleep overrides the inter-attempt wait, for tests. The default is a
	// timer select that unwinds on context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt is called before each fetch, for progress output.
	OnAttempt func(attempt, maxAttempts int)
}

type Loop struct {
	fetcher Fetcher
	opts    Options
	state   string
	attempt int
}

// Outcome is the terminal result of a poll run. State is one of
// succeeded, exhausted, or failed.
type Outcome struct {
	State    string
	Body     []byte
	Reason   *flexws.RemoteError
	Attempts int
}

func New(fetcher Fetcher, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Loop{fetcher: fetcher, opts: opts, state: model.StateSubmitted}
}

func (l *Loop) State() string { return l.state }

func (l *Loop) Attempts() int { return l.attempt }

// Run polls until a terminal state. Transport failures consume an attempt
// and continue; transient network blips are expected mid-poll. The only
// non-terminal return is context cancellation.
func (l *Loop) Run(ctx context.Context, referenceCode string) (Outcome, error) {
	if err := l.transition(model.StatePolling); err != nil {
		return Outcome{}, err
	}

	for l.attempt < l.opts.MaxAttempts {
		wait := l.opts.Interval
		if l.attempt == 0 {
			wait = l.opts.Interval / 2
		}
		if err := l.opts.Sleep(ctx, wait); err != nil {
			return Outcome{}, err
		}

		l.attempt++
		if l.opts.OnAttempt != nil {
			l.opts.OnAttempt(l.attempt, l.opts.MaxAttempts)
		}

		res, err := l.fetcher.Fetch(ctx, referenceCode)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			// Transport failure: worth another attempt.
			continue
		}

		switch res.Kind {
		case flexws.FetchReady:
			if err := l.transition(model.StateSucceeded); err != nil {
				return Outcome{}, err
			}
			return Outcome{State: l.state, Body: res.Body, Attempts: l.attempt}, nil
		case flexws.FetchPending:
			// stay in polling
		case flexws.FetchFailed:
			if err := l.transition(model.StateFailed); err != nil {
				return Outcome{}, err
			}
			return Outcome{State: l.state, Reason: res.Err, Attempts: l.attempt}, nil
		default:
			return Outcome{}, fmt.Errorf("unhandled fetch result kind %d", res.Kind)
		}
	}

	if err := l.transition(model.StateExhausted); err != nil {
		return Outcome{}, err
	}
	return Outcome{State: l.state, Attempts: l.attempt}, nil
}

func (l *Loop) transition(to string) error {
	next, err := model.Transition(l.state, to)
	if err != nil {
		return err
	}
	l.state = next
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
