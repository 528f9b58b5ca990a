package genstate

import (
	"fmt"

	"glot/internal/services"
)

// Event is a state machine input.
type Event string

const (
	// EventDirty marks a key as needing translation: a fresh diff, an
	// explicit re-translate request, or stale in-flight reclamation.
	EventDirty Event = "dirty"
	// EventQueue records a successful grant plus enqueue.
	EventQueue Event = "queue"
	// EventRun is the executor's best-effort claim signal.
	EventRun Event = "run"
	// EventSucceed records an overlay write at the matching fingerprint.
	EventSucceed Event = "succeed"
	// EventFail records an executor, grant, or enqueue failure.
	EventFail Event = "fail"
	// EventSupersede retires a key whose fingerprint is no longer current
	// or whose locale left the active set.
	EventSupersede Event = "supersede"
)

// Transition is the pure state machine: given the current status (empty
// string for a record that does not exist) and an event, it returns the next
// status or a validation error for an illegal move.
func Transition(current Status, event Event) (Status, error) {
	if current == StatusSuperseded {
		return "", illegal(current, event)
	}
	switch event {
	case EventDirty:
		return StatusDirty, nil
	case EventQueue:
		if current == StatusDirty {
			return StatusQueued, nil
		}
	case EventRun:
		if current == StatusQueued || current == StatusRunning {
			return StatusRunning, nil
		}
	case EventSucceed:
		switch current {
		case "", StatusDirty, StatusQueued, StatusRunning, StatusSucceeded:
			return StatusSucceeded, nil
		}
	case EventFail:
		switch current {
		case StatusDirty, StatusQueued, StatusRunning, StatusFailed:
			return StatusFailed, nil
		}
	case EventSupersede:
		return StatusSuperseded, nil
	}
	return "", illegal(current, event)
}

// sourcesFor returns the concrete statuses an event may fire from. The store
// uses this to build conditional-update guards that mirror Transition.
func sourcesFor(event Event) []Status {
	out := make([]Status, 0, len(statuses))
	for _, status := range statuses {
		if _, err := Transition(status, event); err == nil {
			out = append(out, status)
		}
	}
	return out
}

func illegal(current Status, event Event) error {
	from := string(current)
	if from == "" {
		from = "(none)"
	}
	return services.Wrap(services.ErrValidation, "genstate", "transition",
		fmt.Sprintf("illegal %s from %s", event, from), nil)
}
