package tap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkessler/parlo/internal/keys"
)

const keyK = keys.Code(37)
const keyJ = keys.Code(36)

func mustChord(t *testing.T, spec string) keys.Chord {
	t.Helper()
	chord, err := keys.Parse(spec)
	require.NoError(t, err)
	return chord
}

// feedAll runs events through a fresh classifier and collects intents.
func feedAll(chord keys.Chord, events []KeyEvent) []Intent {
	var cl classifier
	cl.setChord(chord)

	var intents []Intent
	for _, ev := range events {
		if intent, ok := cl.feed(ev); ok {
			intents = append(intents, intent)
		}
	}
	return intents
}

func at(ms int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond)
}

func TestModifierOnlyChordAsymmetricRelease(t *testing.T) {
	chord := mustChord(t, "ctrl+alt")

	// control-down, option-down, option-up, control-up: one engaged,
	// one disengaged, regardless of release order.
	orders := map[string][]KeyEvent{
		"option released first": {
			{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(0)},
			{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(10)},
			{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(500)},
			{Kind: ModChange, Modifiers: 0, Time: at(520)},
		},
		"control released first": {
			{Kind: ModChange, Modifiers: keys.ModAlt, Time: at(0)},
			{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(10)},
			{Kind: ModChange, Modifiers: keys.ModAlt, Time: at(500)},
			{Kind: ModChange, Modifiers: 0, Time: at(520)},
		},
	}

	for name, events := range orders {
		t.Run(name, func(t *testing.T) {
			intents := feedAll(chord, events)
			require.Len(t, intents, 2)
			require.Equal(t, Engaged, intents[0].Kind)
			require.Equal(t, Disengaged, intents[1].Kind)
			require.Equal(t, 490*time.Millisecond, intents[1].Held)
		})
	}
}

func TestModifierOnlyChordRequiresExactSet(t *testing.T) {
	chord := mustChord(t, "ctrl+alt")

	// ctrl+alt+shift held: superset never engages
	intents := feedAll(chord, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(0)},
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModShift, Time: at(5)},
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModShift | keys.ModAlt, Time: at(10)},
	})
	require.Empty(t, intents)

	// releasing shift resolves down to the exact set and engages
	intents = feedAll(chord, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModShift | keys.ModAlt, Time: at(0)},
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(5)},
	})
	require.Len(t, intents, 1)
	require.Equal(t, Engaged, intents[0].Kind)
}

func TestModifierOnlyChordSupersetWhileEngagedKeepsGesture(t *testing.T) {
	chord := mustChord(t, "ctrl+alt")

	intents := feedAll(chord, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(0)},
		// extra shift can resolve back to the required set
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt | keys.ModShift, Time: at(100)},
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(200)},
		{Kind: ModChange, Modifiers: keys.ModAlt, Time: at(300)},
	})
	require.Len(t, intents, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Disengaged, intents[1].Kind)
	require.Equal(t, 300*time.Millisecond, intents[1].Held)
}

func TestModifierOnlyChordUnrelatedKeyAborts(t *testing.T) {
	chord := mustChord(t, "ctrl+alt")

	intents := feedAll(chord, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(0)},
		{Kind: KeyDown, Code: keyJ, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(100)},
		{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(200)},
	})
	require.Len(t, intents, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Aborted, intents[1].Kind)
}

func TestKeyedChordLifecycle(t *testing.T) {
	chord := mustChord(t, "super+k")

	intents := feedAll(chord, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModSuper, Time: at(0)},
		{Kind: KeyDown, Code: keyK, Modifiers: keys.ModSuper, Time: at(10)},
		{Kind: KeyUp, Code: keyK, Modifiers: keys.ModSuper, Time: at(400)},
		{Kind: ModChange, Modifiers: 0, Time: at(420)},
	})
	require.Len(t, intents, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Disengaged, intents[1].Kind)
	require.Equal(t, 390*time.Millisecond, intents[1].Held)
}

func TestKeyedChordUnrelatedKeyAborts(t *testing.T) {
	chord := mustChord(t, "super+k")

	// command-down, K-down, unrelated key (command held), K-up
	intents := feedAll(chord, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModSuper, Time: at(0)},
		{Kind: KeyDown, Code: keyK, Modifiers: keys.ModSuper, Time: at(10)},
		{Kind: KeyDown, Code: keyJ, Modifiers: keys.ModSuper, Time: at(100)},
		{Kind: KeyUp, Code: keyK, Modifiers: keys.ModSuper, Time: at(200)},
	})
	require.Len(t, intents, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Aborted, intents[1].Kind)
	// the trailing K-up after the abort produces nothing
}

func TestKeyedChordRequiresModifiers(t *testing.T) {
	chord := mustChord(t, "super+k")

	intents := feedAll(chord, []KeyEvent{
		{Kind: KeyDown, Code: keyK, Modifiers: 0, Time: at(0)},
		{Kind: KeyUp, Code: keyK, Modifiers: 0, Time: at(50)},
	})
	require.Empty(t, intents)
}

func TestKeyedChordExtraModifiersStillEngage(t *testing.T) {
	chord := mustChord(t, "super+k")

	intents := feedAll(chord, []KeyEvent{
		{Kind: KeyDown, Code: keyK, Modifiers: keys.ModSuper | keys.ModShift, Time: at(0)},
	})
	require.Len(t, intents, 1)
	require.Equal(t, Engaged, intents[0].Kind)
}

func TestAutoRepeatSuppressed(t *testing.T) {
	chord := mustChord(t, "super+k")

	intents := feedAll(chord, []KeyEvent{
		{Kind: KeyDown, Code: keyK, Modifiers: keys.ModSuper, Time: at(0)},
		{Kind: KeyRepeat, Code: keyK, Modifiers: keys.ModSuper, Time: at(100)},
		{Kind: KeyRepeat, Code: keyK, Modifiers: keys.ModSuper, Time: at(200)},
		{Kind: KeyUp, Code: keyK, Modifiers: keys.ModSuper, Time: at(300)},
	})
	require.Len(t, intents, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Disengaged, intents[1].Kind)
}

func TestKeyedChordModifierDriftWhileHeld(t *testing.T) {
	chord := mustChord(t, "super+k")

	// releasing the modifier before the key ends on key-up, not abort
	intents := feedAll(chord, []KeyEvent{
		{Kind: KeyDown, Code: keyK, Modifiers: keys.ModSuper, Time: at(0)},
		{Kind: ModChange, Modifiers: 0, Time: at(100)},
		{Kind: KeyUp, Code: keyK, Modifiers: 0, Time: at(200)},
	})
	require.Len(t, intents, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Disengaged, intents[1].Kind)
}

func TestChordSnapshotSurvivesSwapMidGesture(t *testing.T) {
	var cl classifier
	cl.setChord(mustChord(t, "ctrl+alt"))

	intent, ok := cl.feed(KeyEvent{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(0)})
	require.True(t, ok)
	require.Equal(t, Engaged, intent.Kind)

	// swap while engaged: the in-flight gesture still completes
	// against the snapshot taken at engagement
	cl.setChord(mustChord(t, "super+k"))

	intent, ok = cl.feed(KeyEvent{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(300)})
	require.True(t, ok)
	require.Equal(t, Disengaged, intent.Kind)
	require.Equal(t, 300*time.Millisecond, intent.Held)
}

func TestInvalidChordProducesNothing(t *testing.T) {
	intents := feedAll(keys.Chord{}, []KeyEvent{
		{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(0)},
		{Kind: KeyDown, Code: keyK, Modifiers: keys.ModCtrl, Time: at(10)},
	})
	require.Empty(t, intents)
}
