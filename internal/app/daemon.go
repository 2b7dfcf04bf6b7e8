package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkessler/parlo/internal/audio"
	"github.com/mkessler/parlo/internal/config"
	"github.com/mkessler/parlo/internal/engine"
	"github.com/mkessler/parlo/internal/feedback"
	"github.com/mkessler/parlo/internal/fsm"
	"github.com/mkessler/parlo/internal/insert"
	"github.com/mkessler/parlo/internal/ipc"
	"github.com/mkessler/parlo/internal/keys"
	"github.com/mkessler/parlo/internal/notify"
	"github.com/mkessler/parlo/internal/session"
	"github.com/mkessler/parlo/internal/settings"
	"github.com/mkessler/parlo/internal/tap"
	"github.com/mkessler/parlo/internal/transcript"
)

// chordHolder is the single source of truth for the active binding,
// shared between the state machine's conflict check, the IPC status
// handler, and chord updates.
type chordHolder struct {
	mu    sync.RWMutex
	chord keys.Chord
}

func (h *chordHolder) get() keys.Chord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.chord
}

func (h *chordHolder) set(chord keys.Chord) {
	h.mu.Lock()
	h.chord = chord
	h.mu.Unlock()
}

// commandRun owns the daemon lifecycle: socket, input tap, state
// machine, coordinator, and IPC server run until ctx is cancelled.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: parlo daemon already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	store, err := settings.NewFileStore("")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	chord, err := resolveChord(cfg, store, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	holder := &chordHolder{chord: chord}

	whisper, err := engine.NewWhisper(logger, cfg.Engine.ModelPath, cfg.Engine.Language)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("engine init failed", "model", cfg.Engine.ModelPath, "error", err.Error())
		return 1
	}
	defer whisper.Close()

	opener := &audio.PulseOpener{
		Input:    cfg.Audio.Input,
		Fallback: cfg.Audio.Fallback,
	}
	captureCfg := audio.SessionConfig{
		MaxCaptureSeconds: cfg.Audio.MaxCaptureSeconds,
		VADThreshold:      cfg.VAD.Threshold,
		VADHangoverChunks: cfg.VAD.HangoverChunks,
	}
	captures := func() session.Capture {
		return audio.NewSession(logger, opener, captureCfg)
	}

	source := tap.NewEvdevSource(logger, cfg.Hotkey.Devices)
	keyTap := tap.New(logger, source)
	machine := fsm.NewMachine(
		logger,
		time.Duration(cfg.Hotkey.MinHoldMS)*time.Millisecond,
		holder.get,
	)
	notifier := notify.New(logger)
	surface := feedback.New(cfg.Feedback, logger)
	if err := surface.Attach(notifier); err != nil {
		logger.Warn("attach feedback surface failed", "error", err.Error())
	}
	sink := insert.NewCommandSink(cfg.Insert, logger)

	applyChord := func(next keys.Chord) {
		holder.set(next)
		if err := keyTap.UpdateChord(next); err != nil {
			logger.Error("apply chord to tap failed", "chord", next.String(), "error", err.Error())
		}
		if err := store.SaveChord(next); err != nil {
			logger.Error("persist chord failed", "chord", next.String(), "error", err.Error())
		}
	}

	coordinator := session.New(
		logger,
		captures,
		whisper,
		sink,
		notifier,
		session.Config{
			EngineDeadline: time.Duration(cfg.Engine.DeadlineSeconds) * time.Second,
			Transcript: transcript.Options{
				TrailingSpace:       cfg.Transcript.TrailingSpace,
				CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
			},
		},
		applyChord,
	)

	if err := keyTap.Start(ctx, chord); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("start key tap failed", "error", err.Error())
		return 1
	}
	defer keyTap.Stop()

	logger.Info("daemon ready",
		"chord", chord.String(),
		"socket", socketPath,
		"model", cfg.Engine.ModelPath,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		machine.Run(gctx, keyTap.Intents())
		return nil
	})
	g.Go(func() error {
		coordinator.Run(gctx, machine.Events())
		return nil
	})
	g.Go(func() error {
		handler := &controlHandler{co: coordinator, holder: holder}
		return ipc.Serve(gctx, logger, listener, handler)
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon exited with error", "error", err.Error())
		return 1
	}

	notifier.Wait()
	logger.Info("daemon stopped")
	return 0
}

// resolveChord prefers the persisted binding over the config default.
func resolveChord(cfg config.Config, store settings.Store, logger *slog.Logger) (keys.Chord, error) {
	saved, err := store.LoadChord()
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, settings.ErrNoChord) {
		logger.Warn("load saved chord failed; falling back to config", "error", err.Error())
	}

	chord, err := keys.Parse(cfg.Hotkey.Chord)
	if err != nil {
		return keys.Chord{}, fmt.Errorf("parse configured chord %q: %w", cfg.Hotkey.Chord, err)
	}
	return chord, nil
}

// controlHandler serves the daemon's IPC commands.
type controlHandler struct {
	co     *session.Coordinator
	holder *chordHolder
}

func (h *controlHandler) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		status := h.co.Status()
		return ipc.Response{
			OK:        true,
			Phase:     string(status.Phase),
			SessionID: status.SessionID,
			TraceID:   status.TraceID,
			Chord:     h.holder.get().String(),
		}
	case "cancel":
		status := h.co.Status()
		if status.Phase == notify.PhaseIdle {
			return ipc.Response{OK: false, Phase: string(status.Phase), Error: "nothing to cancel"}
		}
		h.co.Cancel(session.ReasonRequested)
		return ipc.Response{OK: true, Phase: string(status.Phase), Message: "cancel requested"}
	case "chord":
		chord, err := keys.Parse(req.Chord)
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		h.co.UpdateChord(chord)
		msg := fmt.Sprintf("chord set to %s", chord.String())
		if keys.Reserved(chord) {
			msg += " (collides with a reserved shortcut)"
		}
		return ipc.Response{OK: true, Chord: chord.String(), Message: msg}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}
