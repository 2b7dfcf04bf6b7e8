package tap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkessler/parlo/internal/keys"
)

// fakeSource feeds scripted events into the tap loop.
type fakeSource struct {
	events   chan KeyEvent
	startErr error
	started  bool
	closed   bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan KeyEvent, 64)}
}

func (f *fakeSource) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeSource) Events() <-chan KeyEvent {
	return f.events
}

func (f *fakeSource) Close() error {
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func collectIntents(t *testing.T, tp *Tap, n int) []Intent {
	t.Helper()
	intents := make([]Intent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(intents) < n {
		select {
		case intent, ok := <-tp.Intents():
			if !ok {
				t.Fatalf("intent channel closed after %d of %d intents", len(intents), n)
			}
			intents = append(intents, intent)
		case <-timeout:
			t.Fatalf("timed out waiting for %d intents, got %d", n, len(intents))
		}
	}
	return intents
}

func TestTapClassifiesSourcedEvents(t *testing.T) {
	source := newFakeSource()
	tp := New(nil, source)

	require.NoError(t, tp.Start(context.Background(), mustChord(t, "ctrl+alt")))

	source.events <- KeyEvent{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(0)}
	source.events <- KeyEvent{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(10)}
	source.events <- KeyEvent{Kind: ModChange, Modifiers: keys.ModAlt, Time: at(500)}

	intents := collectIntents(t, tp, 2)
	require.Equal(t, Engaged, intents[0].Kind)
	require.Equal(t, Disengaged, intents[1].Kind)

	tp.Stop()
}

func TestTapStartRejectsInvalidChord(t *testing.T) {
	tp := New(nil, newFakeSource())
	err := tp.Start(context.Background(), keys.Chord{})
	require.ErrorIs(t, err, keys.ErrEmptyChord)
}

func TestTapStartPropagatesSourceFailure(t *testing.T) {
	source := newFakeSource()
	source.startErr = ErrPermissionDenied
	tp := New(nil, source)

	err := tp.Start(context.Background(), mustChord(t, "ctrl+alt"))
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestTapStartTwiceSwapsChordWithoutReinstall(t *testing.T) {
	source := newFakeSource()
	tp := New(nil, source)

	require.NoError(t, tp.Start(context.Background(), mustChord(t, "ctrl+alt")))
	require.NoError(t, tp.Start(context.Background(), mustChord(t, "super+space")))

	// a second Start must not have re-run the source
	require.True(t, source.started)

	source.events <- KeyEvent{Kind: KeyDown, Code: keys.Code(57), Modifiers: keys.ModSuper, Time: at(0)}
	intents := collectIntents(t, tp, 1)
	require.Equal(t, Engaged, intents[0].Kind)

	tp.Stop()
}

func TestTapUpdateChordRequiresRunning(t *testing.T) {
	tp := New(nil, newFakeSource())
	err := tp.UpdateChord(mustChord(t, "ctrl+alt"))
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestTapStopIsIdempotent(t *testing.T) {
	source := newFakeSource()
	tp := New(nil, source)

	// stop before start is a no-op
	tp.Stop()

	require.NoError(t, tp.Start(context.Background(), mustChord(t, "ctrl+alt")))
	tp.Stop()
	tp.Stop()
	require.True(t, source.closed)

	// intent channel is closed after stop
	_, open := <-tp.Intents()
	require.False(t, open)
}

func TestTapStartAfterStopRejected(t *testing.T) {
	source := newFakeSource()
	tp := New(nil, source)

	require.NoError(t, tp.Start(context.Background(), mustChord(t, "ctrl+alt")))
	tp.Stop()

	err := tp.Start(context.Background(), mustChord(t, "ctrl+alt"))
	require.ErrorIs(t, err, ErrTapClosed)
}

func TestTapPreservesIntentOrderUnderLoad(t *testing.T) {
	source := newFakeSource()
	tp := New(nil, source)
	require.NoError(t, tp.Start(context.Background(), mustChord(t, "ctrl+alt")))

	const gestures = 8
	go func() {
		for i := 0; i < gestures; i++ {
			base := i * 1000
			source.events <- KeyEvent{Kind: ModChange, Modifiers: keys.ModCtrl | keys.ModAlt, Time: at(base)}
			source.events <- KeyEvent{Kind: ModChange, Modifiers: keys.ModCtrl, Time: at(base + 200)}
			source.events <- KeyEvent{Kind: ModChange, Modifiers: 0, Time: at(base + 210)}
		}
	}()

	intents := collectIntents(t, tp, gestures*2)
	for i := 0; i < gestures; i++ {
		require.Equal(t, Engaged, intents[2*i].Kind, "gesture %d", i)
		require.Equal(t, Disengaged, intents[2*i+1].Kind, "gesture %d", i)
	}

	tp.Stop()
}

func TestTapStopsWhenSourceEnds(t *testing.T) {
	source := newFakeSource()
	tp := New(nil, source)
	require.NoError(t, tp.Start(context.Background(), mustChord(t, "ctrl+alt")))

	_ = source.Close()

	select {
	case _, open := <-tp.Intents():
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("intent channel did not close after source ended")
	}

	tp.Stop()
}
