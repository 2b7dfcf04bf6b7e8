// Package tap intercepts global key events and classifies chord gestures.
package tap

import (
	"time"

	"github.com/mkessler/parlo/internal/keys"
)

// EventKind distinguishes the raw key transitions a Source reports.
type EventKind int

const (
	// KeyDown is a non-modifier key press.
	KeyDown EventKind = iota + 1
	// KeyUp is a non-modifier key release.
	KeyUp
	// KeyRepeat is an auto-repeat of a held non-modifier key.
	KeyRepeat
	// ModChange is any modifier press or release; Code is CodeNone.
	ModChange
)

// KeyEvent is one normalized key transition. Modifiers is the complete
// clean modifier set held after the event took effect; OS-internal
// flag bits never reach this type.
type KeyEvent struct {
	Kind      EventKind
	Code      keys.Code
	Modifiers keys.Modifiers
	Time      time.Time
}

// IntentKind is the gesture classification emitted per chord transition.
type IntentKind int

const (
	// Engaged fires once when the configured chord becomes held.
	Engaged IntentKind = iota + 1
	// Disengaged fires on the first release that ends the gesture.
	Disengaged
	// Aborted fires when an unrelated key interrupts an engaged gesture.
	Aborted
)

func (k IntentKind) String() string {
	switch k {
	case Engaged:
		return "engaged"
	case Disengaged:
		return "disengaged"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Intent is one classified gesture transition. Held is populated for
// Disengaged only. Intents are ephemeral: produced, delivered in
// order, and never stored.
type Intent struct {
	Kind IntentKind
	At   time.Time
	Held time.Duration
}
