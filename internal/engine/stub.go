//go:build !whisper

package engine

import (
	"context"
	"log/slog"

	"github.com/mkessler/parlo/internal/audio"
)

// Whisper is the no-inference placeholder compiled without the
// `whisper` build tag. Construction succeeds so wiring and the rest of
// the pipeline stay testable; Transcribe reports ErrUnavailable.
type Whisper struct{}

// NewWhisper builds the placeholder; modelPath and language are unused.
func NewWhisper(logger *slog.Logger, modelPath string, language string) (*Whisper, error) {
	if logger != nil {
		logger.Warn("built without whisper support; transcription is disabled")
	}
	return &Whisper{}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, snapshot audio.Snapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{}, ErrUnavailable
}

func (w *Whisper) Close() error {
	return nil
}
