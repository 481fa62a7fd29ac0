package model

import "fmt"

const (
	StateSubmitted = "submitted"
	StatePolling   = "polling"
	StateSucceeded = "succeeded"
	StateExhausted = "exhausted"
	StateFailed    = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	StateSubmitted: {
		StatePolling: true,
	},
	StatePolling: {
		StatePolling:   true,
		StateSucceeded: true,
		StateExhausted: true,
		StateFailed:    true,
	},
	StateSucceeded: {},
	StateExhausted: {},
	StateFailed:    {},
}

func IsKnownState(state string) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminalState reports whether a poll state admits no further transitions.
func IsTerminalState(state string) bool {
	next, ok := allowedTransitions[state]
	return ok && len(next) == 0
}

func Transition(from, to string) (string, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid poll state transition: %q -> %q", from, to)
	}
	return to, nil
}
