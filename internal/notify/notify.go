// Package notify fans session state out to presentation observers.
package notify

import (
	"io"
	"log/slog"

	evbus "github.com/asaskevich/EventBus"
)

// Phase is the externally visible state of the dictation pipeline.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseArmed      Phase = "armed"
	PhaseCapturing  Phase = "capturing"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseCancelled  Phase = "cancelled"
	PhaseFailed     Phase = "failed"
)

// State is one observer notification. Reason is set for cancelled,
// Err for failed. The core places no requirement on how or whether a
// subscriber displays it.
type State struct {
	Phase     Phase
	SessionID uint64
	// Reason explains a cancellation: too_short, interrupted,
	// device_lost, superseded_before_dispatch.
	Reason string
	Err    string
	// ConflictWarning marks a session whose chord collides with a
	// reserved OS shortcut.
	ConflictWarning bool
	// VoiceActive mirrors the capture voice-activity signal.
	VoiceActive bool
}

const stateTopic = "parlo:state"

// Notifier publishes pipeline state over an explicit event bus
// instance; no process-wide singletons.
type Notifier struct {
	logger *slog.Logger
	bus    evbus.Bus
}

// New builds a notifier with its own bus.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{logger: logger, bus: evbus.New()}
}

// Publish delivers one state to all subscribers. Delivery is
// asynchronous so the publishing goroutine never blocks on a slow
// observer.
func (n *Notifier) Publish(state State) {
	n.logger.Debug("state published",
		"phase", string(state.Phase),
		"session_id", state.SessionID,
		"reason", state.Reason,
	)
	n.bus.Publish(stateTopic, state)
}

// Subscribe registers an observer for every subsequent state. The
// handler runs on the bus's delivery goroutine and must not block.
func (n *Notifier) Subscribe(handler func(State)) error {
	return n.bus.SubscribeAsync(stateTopic, handler, false)
}

// Unsubscribe removes a previously registered observer.
func (n *Notifier) Unsubscribe(handler func(State)) error {
	return n.bus.Unsubscribe(stateTopic, handler)
}

// Wait blocks until queued asynchronous deliveries are flushed; test
// and shutdown helper.
func (n *Notifier) Wait() {
	n.bus.WaitAsync()
}
