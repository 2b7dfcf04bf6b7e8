// Package fsm turns gesture intents into recording lifecycle events.
package fsm

import (
	"fmt"

	"github.com/mkessler/parlo/internal/tap"
)

type State string

const (
	// StateIdle means no gesture is in progress.
	StateIdle State = "idle"
	// StateArmed means the chord is held and a session should be live.
	StateArmed State = "armed"
	// StateCompleted is the terminal state of a deliberate release; it
	// immediately loops back to Idle.
	StateCompleted State = "completed"
	// StateCancelled is the terminal state of a rejected or interrupted
	// gesture; it immediately loops back to Idle.
	StateCancelled State = "cancelled"
)

// Transition applies one intent kind to the machine state. Terminal
// states are transient: callers fold them back to Idle after emitting
// the corresponding lifecycle event.
func Transition(current State, intent tap.IntentKind) (State, error) {
	switch current {
	case StateIdle:
		switch intent {
		case tap.Engaged:
			return StateArmed, nil
		default:
			// non-engage intents while idle are ignored, not errors
			return StateIdle, nil
		}
	case StateArmed:
		switch intent {
		case tap.Disengaged:
			return StateCompleted, nil
		case tap.Aborted:
			return StateCancelled, nil
		case tap.Engaged:
			return current, invalidTransition(current, intent)
		default:
			return current, invalidTransition(current, intent)
		}
	case StateCompleted, StateCancelled:
		return current, invalidTransition(current, intent)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, intent tap.IntentKind) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, intent)
}
