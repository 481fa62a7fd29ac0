package model

import "testing"

func TestPollStateTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{StateSubmitted, StatePolling, true},
		{StatePolling, StatePolling, true},
		{StatePolling, StateSucceeded, true},
		{StatePolling, StateExhausted, true},
		{StatePolling, StateFailed, true},
		{StateSubmitted, StateSucceeded, false},
		{StateSucceeded, StatePolling, false},
		{StateExhausted, StatePolling, false},
		{StateFailed, StateSucceeded, false},
		{"bogus", StatePolling, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []string{StateSucceeded, StateExhausted, StateFailed} {
		if !IsTerminalState(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []string{StateSubmitted, StatePolling} {
		if IsTerminalState(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if IsTerminalState("bogus") {
		t.Error("unknown state must not report terminal")
	}
}
