//go:build linux

package tap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkessler/parlo/internal/keys"
)

func TestEvdevForwardShedsRepeatsKeepsEdges(t *testing.T) {
	src := NewEvdevSource(nil, nil)
	src.events = make(chan KeyEvent, 1)
	src.events <- KeyEvent{Kind: KeyDown, Code: keys.Code(30)}

	ctx := context.Background()

	// A repeat against a full channel is shed without blocking.
	require.True(t, src.forward(ctx, KeyEvent{Kind: KeyRepeat, Code: keys.Code(30)}))
	require.Len(t, src.events, 1)

	// A release edge waits for the consumer instead of being dropped.
	done := make(chan bool, 1)
	go func() {
		done <- src.forward(ctx, KeyEvent{Kind: KeyUp, Code: keys.Code(30)})
	}()

	first := <-src.events
	require.Equal(t, KeyDown, first.Kind)
	require.True(t, <-done)

	second := <-src.events
	require.Equal(t, KeyUp, second.Kind)
}

func TestEvdevForwardStopsWhenContextEnds(t *testing.T) {
	src := NewEvdevSource(nil, nil)
	src.events = make(chan KeyEvent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.False(t, src.forward(ctx, KeyEvent{Kind: KeyUp, Code: keys.Code(30)}))
}
