package tap

import (
	"time"

	"github.com/mkessler/parlo/internal/keys"
)

// classifier turns raw key events into gesture intents for one chord.
// It is not safe for concurrent use; the tap loop owns it. While a
// gesture is engaged the classifier keeps the chord snapshot taken at
// engagement, so a concurrent chord swap never corrupts an in-flight
// evaluation.
type classifier struct {
	chord keys.Chord

	engaged   bool
	engagedAt time.Time
	// snapshot of the chord the active gesture was evaluated against
	active keys.Chord
}

// setChord swaps the comparison target. An engaged gesture continues
// against its snapshot; the new chord applies from the next idle state.
func (c *classifier) setChord(chord keys.Chord) {
	c.chord = chord
}

// feed evaluates one event and reports the resulting intent, if any.
func (c *classifier) feed(ev KeyEvent) (Intent, bool) {
	if c.engaged {
		return c.feedEngaged(ev)
	}
	return c.feedIdle(ev)
}

func (c *classifier) feedIdle(ev KeyEvent) (Intent, bool) {
	chord := c.chord
	if chord.Validate() != nil {
		return Intent{}, false
	}

	if chord.ModifierOnly() {
		// Engagement requires exactly the configured set: no more, no
		// fewer. A superset never arms; it must first resolve down.
		if ev.Kind == ModChange && ev.Modifiers == chord.Modifiers {
			return c.engage(chord, ev.Time), true
		}
		return Intent{}, false
	}

	if ev.Kind == KeyDown && ev.Code == chord.Code && ev.Modifiers.Contains(chord.Modifiers) {
		return c.engage(chord, ev.Time), true
	}
	return Intent{}, false
}

func (c *classifier) feedEngaged(ev KeyEvent) (Intent, bool) {
	chord := c.active

	switch ev.Kind {
	case KeyRepeat:
		// auto-repeat of an engaged chord never re-fires
		return Intent{}, false
	case KeyDown:
		if !chord.ModifierOnly() && ev.Code == chord.Code {
			return Intent{}, false
		}
		return c.abort(ev.Time), true
	case KeyUp:
		if !chord.ModifierOnly() && ev.Code == chord.Code {
			return c.disengage(ev.Time), true
		}
		// release of a key that was never part of the chord
		return Intent{}, false
	case ModChange:
		if chord.ModifierOnly() {
			// The first transition that removes any required modifier
			// ends the gesture. Users never release two modifiers in
			// perfect synchrony, so this must read as a deliberate
			// release, not an abort.
			if !ev.Modifiers.Contains(chord.Modifiers) {
				return c.disengage(ev.Time), true
			}
			// a strict superset can still resolve back to the chord
			return Intent{}, false
		}
		// Keyed chord: modifier drift while the key is held is
		// tolerated; the gesture ends on the key-up.
		return Intent{}, false
	default:
		return Intent{}, false
	}
}

func (c *classifier) engage(chord keys.Chord, at time.Time) Intent {
	c.engaged = true
	c.engagedAt = at
	c.active = chord
	return Intent{Kind: Engaged, At: at}
}

func (c *classifier) disengage(at time.Time) Intent {
	held := at.Sub(c.engagedAt)
	c.reset()
	return Intent{Kind: Disengaged, At: at, Held: held}
}

func (c *classifier) abort(at time.Time) Intent {
	c.reset()
	return Intent{Kind: Aborted, At: at}
}

func (c *classifier) reset() {
	c.engaged = false
	c.engagedAt = time.Time{}
	c.active = keys.Chord{}
}
