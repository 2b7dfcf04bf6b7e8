// Package feedback surfaces pipeline state to the user through desktop
// notifications and short audio cues. It observes the notify bus; the
// pipeline never waits on it.
package feedback

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mkessler/parlo/internal/config"
	"github.com/mkessler/parlo/internal/notify"
)

const (
	msgCapturing  = "Dictating…"
	msgProcessing = "Transcribing…"
	msgFailed     = "Dictation failed"
)

// Feedback renders pipeline phases as replaceable desktop
// notifications plus synthesized cue tones.
type Feedback struct {
	cfg    config.FeedbackConfig
	logger *slog.Logger

	mu             sync.Mutex
	lastPhase      notify.Phase
	notificationID uint32

	soundMu sync.Mutex
}

// New builds a feedback surface from config.
func New(cfg config.FeedbackConfig, logger *slog.Logger) *Feedback {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.AppName == "" {
		cfg.AppName = "parlo"
	}
	return &Feedback{cfg: cfg, logger: logger}
}

// Attach subscribes the surface to a notifier's state stream.
func (f *Feedback) Attach(n *notify.Notifier) error {
	return n.Subscribe(f.HandleState)
}

// HandleState reacts to one pipeline state. Repeated states for the
// same phase (voice-activity updates) are collapsed.
func (f *Feedback) HandleState(state notify.State) {
	f.mu.Lock()
	same := state.Phase == f.lastPhase
	f.lastPhase = state.Phase
	f.mu.Unlock()
	if same {
		return
	}

	switch state.Phase {
	case notify.PhaseCapturing:
		f.playCue(cueStart)
		msg := msgCapturing
		if state.ConflictWarning {
			msg += " (chord conflicts with a system shortcut)"
		}
		f.show(msg, 300000)
	case notify.PhaseProcessing:
		f.show(msgProcessing, 300000)
	case notify.PhaseCompleted:
		f.playCue(cueComplete)
		f.dismiss()
	case notify.PhaseCancelled:
		f.playCue(cueCancel)
		f.dismiss()
	case notify.PhaseFailed:
		f.playCue(cueCancel)
		msg := msgFailed
		if state.Err != "" {
			msg += ": " + state.Err
		}
		f.show(msg, 1500)
	case notify.PhaseIdle:
		f.dismiss()
	}
}

// show sends or replaces the desktop notification.
func (f *Feedback) show(text string, timeoutMS int) {
	if !f.cfg.Notifications {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	f.mu.Lock()
	replaceID := f.notificationID
	f.mu.Unlock()

	id, err := desktopNotify(ctx, f.cfg.AppName, replaceID, text, timeoutMS)
	if err != nil {
		f.logger.Debug("desktop notification failed", "error", err.Error())
		return
	}

	f.mu.Lock()
	f.notificationID = id
	f.mu.Unlock()
}

// dismiss closes the active notification, if any.
func (f *Feedback) dismiss() {
	if !f.cfg.Notifications {
		return
	}

	f.mu.Lock()
	id := f.notificationID
	f.notificationID = 0
	f.mu.Unlock()
	if id == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	if err := desktopDismiss(ctx, id); err != nil {
		f.logger.Debug("desktop dismiss failed", "error", err.Error())
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (f *Feedback) playCue(kind cueKind) {
	if !f.cfg.Sounds {
		return
	}
	go func() {
		f.soundMu.Lock()
		defer f.soundMu.Unlock()
		if err := emitCue(kind); err != nil {
			f.logger.Debug("audio cue failed", "error", err.Error())
		}
	}()
}
