package fsm

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mkessler/parlo/internal/keys"
	"github.com/mkessler/parlo/internal/tap"
)

// EventKind is the session-lifecycle signal the machine emits.
type EventKind int

const (
	// SessionShouldStart asks the coordinator to begin capturing.
	SessionShouldStart EventKind = iota + 1
	// SessionShouldEnd asks the coordinator to finalize and transcribe.
	SessionShouldEnd
	// SessionShouldCancel asks the coordinator to discard the capture.
	SessionShouldCancel
)

// CancelReason explains a SessionShouldCancel event.
type CancelReason string

const (
	// ReasonTooShort marks a hold below the debounce threshold.
	ReasonTooShort CancelReason = "too_short"
	// ReasonInterrupted marks an unrelated key breaking the gesture.
	ReasonInterrupted CancelReason = "interrupted"
)

// Event is one lifecycle signal. Held is set for SessionShouldEnd;
// Reason for SessionShouldCancel. ConflictWarning tags a start whose
// chord collides with a known OS-reserved shortcut; activation still
// proceeds, the observer layer decides what to show.
type Event struct {
	Kind            EventKind
	At              time.Time
	Held            time.Duration
	Reason          CancelReason
	ConflictWarning bool
}

// DefaultMinHold rejects accidental taps shorter than this.
const DefaultMinHold = 100 * time.Millisecond

// Machine consumes gesture intents and emits lifecycle events. One
// goroutine (Run) owns all state; Feed is exported separately for
// deterministic tests.
type Machine struct {
	logger  *slog.Logger
	minHold time.Duration
	// chordFn reports the currently configured chord for the
	// engage-time reserved-shortcut check.
	chordFn func() keys.Chord

	state  State
	events chan Event
}

// NewMachine builds a machine with the given debounce threshold;
// minHold <= 0 selects DefaultMinHold.
func NewMachine(logger *slog.Logger, minHold time.Duration, chordFn func() keys.Chord) *Machine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if minHold <= 0 {
		minHold = DefaultMinHold
	}
	if chordFn == nil {
		chordFn = func() keys.Chord { return keys.Chord{} }
	}
	return &Machine{
		logger:  logger,
		minHold: minHold,
		chordFn: chordFn,
		state:   StateIdle,
		events:  make(chan Event, 16),
	}
}

// Events yields lifecycle events in the order intents were consumed.
// The channel closes when Run returns.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// State returns the current machine state.
func (m *Machine) State() State {
	return m.state
}

// Run pumps intents through the machine until the intent channel
// closes or the context ends.
func (m *Machine) Run(ctx context.Context, intents <-chan tap.Intent) {
	defer close(m.events)

	for {
		select {
		case <-ctx.Done():
			return
		case intent, ok := <-intents:
			if !ok {
				return
			}
			event, emitted := m.Feed(intent)
			if !emitted {
				continue
			}
			select {
			case m.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Feed applies one intent and reports the lifecycle event, if any.
// Terminal states fold straight back to Idle so every path leaves the
// machine ready for the next gesture.
func (m *Machine) Feed(intent tap.Intent) (Event, bool) {
	next, err := Transition(m.state, intent.Kind)
	if err != nil {
		m.logger.Warn("gesture intent rejected",
			"state", string(m.state),
			"intent", intent.Kind.String(),
			"error", err.Error(),
		)
		return Event{}, false
	}

	prev := m.state
	m.state = next

	switch next {
	case StateArmed:
		if prev != StateIdle {
			return Event{}, false
		}
		conflict := keys.Reserved(m.chordFn())
		if conflict {
			m.logger.Warn("chord collides with a reserved shortcut", "chord", m.chordFn().String())
		}
		return Event{Kind: SessionShouldStart, At: intent.At, ConflictWarning: conflict}, true

	case StateCompleted:
		m.state = StateIdle
		if intent.Held < m.minHold {
			// An accidental tap: the gesture completed mechanically but
			// is rejected as a deliberate activation.
			return Event{
				Kind:   SessionShouldCancel,
				At:     intent.At,
				Held:   intent.Held,
				Reason: ReasonTooShort,
			}, true
		}
		return Event{Kind: SessionShouldEnd, At: intent.At, Held: intent.Held}, true

	case StateCancelled:
		m.state = StateIdle
		return Event{Kind: SessionShouldCancel, At: intent.At, Reason: ReasonInterrupted}, true

	default:
		// Idle-to-Idle ignores
		return Event{}, false
	}
}
