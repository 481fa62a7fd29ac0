package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"flexfetch/internal/flexws"
	"flexfetch/internal/model"
)

type step struct {
	result flexws.FetchResult
	err    error
}

type scriptedFetcher struct {
	steps []step
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, referenceCode string) (flexws.FetchResult, error) {
	if f.calls >= len(f.steps) {
		return flexws.FetchResult{}, errors.New("fetch called past end of script")
	}
	s := f.steps[f.calls]
	f.calls++
	return s.result, s.err
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func pending() step {
	return step{result: flexws.FetchResult{
		Kind: flexws.FetchPending,
		Err:  &flexws.RemoteError{Code: "1019", Kind: flexws.KindPending},
	}}
}

func ready(body string) step {
	return step{result: flexws.FetchResult{Kind: flexws.FetchReady, Body: []byte(body)}}
}

func TestRunSucceedsOnFirstReady(t *testing.T) {
	f := &scriptedFetcher{steps: []step{pending(), pending(), ready("<FlexQueryResponse/>")}}
	l := New(f, Options{Interval: time.Second, MaxAttempts: 10, Sleep: noSleep})

	out, err := l.Run(context.Background(), "ref")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.State != model.StateSucceeded {
		t.Fatalf("state = %q", out.State)
	}
	if string(out.Body) != "<FlexQueryResponse/>" {
		t.Fatalf("body = %q", out.Body)
	}
	if out.Attempts != 3 || f.calls != 3 {
		t.Fatalf("attempts=%d calls=%d, want 3 each (no fetches after ready)", out.Attempts, f.calls)
	}
	if l.State() != model.StateSucceeded {
		t.Fatalf("loop state = %q", l.State())
	}
}

func TestRunExhaustsBudget(t *testing.T) {
	steps := make([]step, 0, 5)
	for i := 0; i < 5; i++ {
		steps = append(steps, pending())
	}
	f := &scriptedFetcher{steps: steps}
	l := New(f, Options{Interval: time.Second, MaxAttempts: 4, Sleep: noSleep})

	out, err := l.Run(context.Background(), "ref")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.State != model.StateExhausted {
		t.Fatalf("state = %q", out.State)
	}
	if f.calls != 4 {
		t.Fatalf("calls = %d, must never exceed max attempts", f.calls)
	}
}

func TestRunTerminalRemoteFailure(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		pending(),
		{result: flexws.FetchResult{
			Kind: flexws.FetchFailed,
			Err:  &flexws.RemoteError{Code: "1012", Message: "Token has expired.", Kind: flexws.KindFailed},
		}},
	}}
	l := New(f, Options{Interval: time.Second, MaxAttempts: 10, Sleep: noSleep})

	out, err := l.Run(context.Background(), "ref")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.State != model.StateFailed {
		t.Fatalf("state = %q", out.State)
	}
	if out.Reason == nil || out.Reason.Code != "1012" {
		t.Fatalf("reason = %+v", out.Reason)
	}
	if f.calls != 2 {
		t.Fatalf("calls = %d, terminal failure must stop the loop", f.calls)
	}
}

func TestRunTransportErrorConsumesAttempt(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: errors.New("connection reset")},
		{err: errors.New("timeout")},
		ready("data"),
	}}
	l := New(f, Options{Interval: time.Second, MaxAttempts: 3, Sleep: noSleep})

	out, err := l.Run(context.Background(), "ref")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.State != model.StateSucceeded || out.Attempts != 3 {
		t.Fatalf("state=%q attempts=%d", out.State, out.Attempts)
	}
}

func TestRunFirstWaitIsHalfInterval(t *testing.T) {
	var waits []time.Duration
	f := &scriptedFetcher{steps: []step{pending(), pending(), ready("x")}}
	l := New(f, Options{
		Interval:    10 * time.Second,
		MaxAttempts: 5,
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	if _, err := l.Run(context.Background(), "ref"); err != nil {
		t.Fatal(err)
	}
	if len(waits) != 3 {
		t.Fatalf("expected 3 waits, got %d", len(waits))
	}
	if waits[0] != 5*time.Second {
		t.Fatalf("first wait = %v, want half interval", waits[0])
	}
	if waits[1] != 10*time.Second || waits[2] != 10*time.Second {
		t.Fatalf("later waits = %v, want full interval", waits[1:])
	}
}

func TestRunCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &scriptedFetcher{steps: []step{pending(), pending()}}
	l := New(f, Options{
		Interval:    time.Second,
		MaxAttempts: 10,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	_, err := l.Run(ctx, "ref")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("no fetch should happen after cancellation, got %d", f.calls)
	}
}

func TestSleepContextInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sleepContext(ctx, time.Minute) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sleep did not unwind on cancellation")
	}
}
