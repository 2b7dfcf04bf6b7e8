package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	n := New(nil)

	var (
		mu     sync.Mutex
		states []State
	)
	handler := func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}
	require.NoError(t, n.Subscribe(handler))

	n.Publish(State{Phase: PhaseArmed, SessionID: 1})
	n.Publish(State{Phase: PhaseCapturing, SessionID: 1})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 2)
	require.Equal(t, PhaseArmed, states[0].Phase)
	require.Equal(t, PhaseCapturing, states[1].Phase)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	n := New(nil)

	var (
		mu    sync.Mutex
		count int
	)
	handler := func(State) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	require.NoError(t, n.Subscribe(handler))

	n.Publish(State{Phase: PhaseIdle})
	n.Wait()
	require.NoError(t, n.Unsubscribe(handler))

	n.Publish(State{Phase: PhaseFailed})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestPublishWithoutSubscribersIsSafe(t *testing.T) {
	n := New(nil)
	n.Publish(State{Phase: PhaseCancelled, Reason: "too_short"})
	n.Wait()
}
