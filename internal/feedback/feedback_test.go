package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkessler/parlo/internal/config"
	"github.com/mkessler/parlo/internal/notify"
)

func TestCueSamplesPresent(t *testing.T) {
	require.NotEmpty(t, cueSamples(cueStart))
	require.NotEmpty(t, cueSamples(cueComplete))
	require.NotEmpty(t, cueSamples(cueCancel))
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	want := samplesForDuration(100 * time.Millisecond)
	require.Len(t, got, want)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSamplesForDuration(t *testing.T) {
	require.Equal(t, 0, samplesForDuration(0))
	require.Greater(t, samplesForDuration(25*time.Millisecond), 0)
}

func TestHandleStateCollapsesRepeatedPhases(t *testing.T) {
	// disabled surfaces exercise the phase bookkeeping without touching
	// the desktop or audio stack
	f := New(config.FeedbackConfig{}, nil)

	f.HandleState(notify.State{Phase: notify.PhaseCapturing})
	require.Equal(t, notify.PhaseCapturing, f.lastPhase)

	f.HandleState(notify.State{Phase: notify.PhaseCapturing, VoiceActive: true})
	require.Equal(t, notify.PhaseCapturing, f.lastPhase)

	f.HandleState(notify.State{Phase: notify.PhaseCompleted})
	require.Equal(t, notify.PhaseCompleted, f.lastPhase)
}

func TestAttachSubscribesToNotifier(t *testing.T) {
	f := New(config.FeedbackConfig{}, nil)
	n := notify.New(nil)

	require.NoError(t, f.Attach(n))

	n.Publish(notify.State{Phase: notify.PhaseProcessing})
	n.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, notify.PhaseProcessing, f.lastPhase)
}
