// Package engine wraps the local transcription capability.
package engine

import (
	"context"
	"errors"

	"github.com/mkessler/parlo/internal/audio"
)

// Result is one completed transcription.
type Result struct {
	Text string
	// Confidence is the engine's mean segment probability in [0,1];
	// engines that cannot score report 0.
	Confidence float32
}

// Engine accepts a snapshot of audio samples and returns text. The
// caller bounds the call with a context deadline; implementations must
// honor cancellation between processing steps.
type Engine interface {
	Transcribe(ctx context.Context, snapshot audio.Snapshot) (Result, error)
	Close() error
}

var (
	// ErrUnavailable indicates the binary was built without engine
	// support or the engine failed to load.
	ErrUnavailable = errors.New("transcription engine unavailable")
	// ErrModelNotFound indicates the configured model path is missing.
	ErrModelNotFound = errors.New("model file not found")
)

// pcmToFloat32 converts s16 samples to the normalized float form
// whisper consumes.
func pcmToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / 32768.0
	}
	return out
}
