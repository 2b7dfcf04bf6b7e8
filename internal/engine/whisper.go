//go:build whisper

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mkessler/parlo/internal/audio"
)

// Whisper runs whisper.cpp inference over a locally loaded model. The
// model loads once at construction; each Transcribe call gets a fresh
// whisper context. A mutex serializes inference, matching the
// at-most-one-in-flight invariant upstream.
type Whisper struct {
	logger   *slog.Logger
	language string

	mu    sync.Mutex
	model whisper.Model
}

// NewWhisper loads the model at modelPath.
func NewWhisper(logger *slog.Logger, modelPath string, language string) (*Whisper, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if _, err := os.Stat(modelPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("stat model %q: %w", modelPath, err)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load model %q: %v", ErrUnavailable, modelPath, err)
	}

	logger.Info("whisper model loaded", "path", modelPath)
	return &Whisper{logger: logger, language: language, model: model}, nil
}

// Transcribe runs inference over the snapshot and assembles the text.
func (w *Whisper) Transcribe(ctx context.Context, snapshot audio.Snapshot) (Result, error) {
	if snapshot.Empty() {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return Result{}, ErrUnavailable
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("create whisper context: %w", err)
	}
	if w.language != "" {
		if err := wctx.SetLanguage(w.language); err != nil {
			return Result{}, fmt.Errorf("set language %q: %w", w.language, err)
		}
	}

	if err := wctx.Process(pcmToFloat32(snapshot.Samples), nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("whisper inference: %w", err)
	}

	var text strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		text.WriteString(segment.Text)
	}

	// whisper.cpp exposes no per-segment confidence through these
	// bindings; report zero rather than inventing one.
	return Result{Text: strings.TrimSpace(text.String())}, nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil {
		err := w.model.Close()
		w.model = nil
		return err
	}
	return nil
}
