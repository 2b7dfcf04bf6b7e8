// Package session coordinates dictation lifecycle state, capture, and
// transcription dispatch.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkessler/parlo/internal/audio"
	"github.com/mkessler/parlo/internal/engine"
	"github.com/mkessler/parlo/internal/fsm"
	"github.com/mkessler/parlo/internal/insert"
	"github.com/mkessler/parlo/internal/keys"
	"github.com/mkessler/parlo/internal/notify"
	"github.com/mkessler/parlo/internal/transcript"
)

// State is the lifecycle position of one recording session.
type State string

const (
	// StateCapturing means the microphone is live and filling the buffer.
	StateCapturing State = "capturing"
	// StateFinalizing means capture stopped and the audio awaits or is
	// undergoing transcription.
	StateFinalizing State = "finalizing"
	// StateCompleted means the session finished, with or without text.
	StateCompleted State = "completed"
	// StateCancelled means the audio was discarded without insertion.
	StateCancelled State = "cancelled"
	// StateFailed means capture or transcription errored.
	StateFailed State = "failed"
)

// Cancellation reasons carried on cancelled records and notifications.
const (
	ReasonTooShort    = string(fsm.ReasonTooShort)
	ReasonInterrupted = string(fsm.ReasonInterrupted)
	ReasonDeviceLost  = "device_lost"
	// ReasonSuperseded marks a finalized session whose transcription
	// request was cancelled before dispatch because a newer session
	// finished behind it.
	ReasonSuperseded = "superseded_before_dispatch"
	// ReasonShutdown marks sessions torn down by daemon exit.
	ReasonShutdown = "shutdown"
	// ReasonRequested marks an explicit cancel command.
	ReasonRequested = "requested"
)

// Record is the bookkeeping for one recording session. The coordinator
// goroutine owns it; copies handed out are snapshots.
type Record struct {
	// ID increases monotonically for the process lifetime.
	ID uint64
	// TraceID correlates log lines across capture and transcription.
	TraceID    string
	State      State
	StartedAt  time.Time
	EndedAt    time.Time
	Held       time.Duration
	Truncated  bool
	Transcript string
	// CancelReason is set when State is StateCancelled.
	CancelReason string
	Err          error
}

// Capture is the session-facing subset of the audio capture API.
type Capture interface {
	Start(ctx context.Context) error
	Stop() audio.Snapshot
	Discard()
	Activity() <-chan audio.Activity
	Faults() <-chan error
}

// CaptureFactory builds a fresh capture session per activation.
type CaptureFactory func() Capture

// Config carries the coordinator policy knobs.
type Config struct {
	// EngineDeadline bounds one transcription request.
	EngineDeadline time.Duration
	// InsertTimeout bounds one text delivery.
	InsertTimeout time.Duration
	Transcript    transcript.Options
}

// DefaultEngineDeadline bounds a transcription request when config
// leaves it unset.
const DefaultEngineDeadline = 20 * time.Second

// Status is the externally visible coordinator snapshot served to IPC
// clients.
type Status struct {
	Phase     notify.Phase
	SessionID uint64
	TraceID   string
}

// request is one finalized snapshot awaiting or undergoing
// transcription.
type request struct {
	rec    *Record
	snap   audio.Snapshot
	ctx    context.Context
	cancel context.CancelFunc
}

// outcome is what the dispatch goroutine reports back to the loop.
type outcome struct {
	req *request
	res engine.Result
	err error
}

// Coordinator owns the dictation pipeline: it consumes lifecycle
// events from the hotkey state machine, holds at most one live capture
// session and at most one in-flight transcription, and delivers each
// committed transcript exactly once. All lifecycle state is confined
// to the Run goroutine.
type Coordinator struct {
	logger     *slog.Logger
	captures   CaptureFactory
	engine     engine.Engine
	sink       insert.Sink
	notifier   *notify.Notifier
	cfg        Config
	applyChord func(keys.Chord)

	results chan outcome
	cancels chan string
	chords  chan keys.Chord

	mu     sync.RWMutex
	status Status
	nextID uint64
}

// New constructs a coordinator with safe default fallbacks.
func New(
	logger *slog.Logger,
	captures CaptureFactory,
	eng engine.Engine,
	sink insert.Sink,
	notifier *notify.Notifier,
	cfg Config,
	applyChord func(keys.Chord),
) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if eng == nil {
		eng = unavailableEngine{}
	}
	if sink == nil {
		sink = insert.Func(func(context.Context, string) error { return nil })
	}
	if notifier == nil {
		notifier = notify.New(nil)
	}
	if applyChord == nil {
		applyChord = func(keys.Chord) {}
	}
	if cfg.EngineDeadline <= 0 {
		cfg.EngineDeadline = DefaultEngineDeadline
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 5 * time.Second
	}

	return &Coordinator{
		logger:     logger,
		captures:   captures,
		engine:     eng,
		sink:       sink,
		notifier:   notifier,
		cfg:        cfg,
		applyChord: applyChord,
		results:    make(chan outcome, 1),
		cancels:    make(chan string, 1),
		chords:     make(chan keys.Chord, 1),
		status:     Status{Phase: notify.PhaseIdle},
	}
}

// Status returns the current pipeline snapshot.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Cancel requests cancellation of the active capture session. The
// reason lands on the session record; latest request wins.
func (c *Coordinator) Cancel(reason string) {
	if reason == "" {
		reason = ReasonRequested
	}
	pushLatest(c.cancels, reason)
}

// UpdateChord queues a chord change. It is applied immediately when no
// capture is active, otherwise deferred until the session ends so a
// gesture in progress keeps the chord it engaged with.
func (c *Coordinator) UpdateChord(chord keys.Chord) {
	pushLatest(c.chords, chord)
}

// pushLatest delivers v on a capacity-one channel, displacing any
// undelivered predecessor.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// activeCapture pairs a live capture with its record.
type activeCapture struct {
	rec *Record
	cap Capture
}

// Run consumes lifecycle events until the channel closes or the
// context ends. It is the sole goroutine touching session records.
func (c *Coordinator) Run(ctx context.Context, events <-chan fsm.Event) {
	var (
		active       *activeCapture
		inflight     *request
		waiting      *request
		pendingChord *keys.Chord
		faults       <-chan error
		activity     <-chan audio.Activity
	)

	clearActive := func() {
		active = nil
		faults = nil
		activity = nil
	}

	settle := func() {
		if active == nil && pendingChord != nil {
			c.applyChord(*pendingChord)
			c.logger.Info("deferred chord update applied", "chord", pendingChord.String())
			pendingChord = nil
		}
		if active == nil && inflight == nil && waiting == nil {
			c.publish(notify.State{Phase: notify.PhaseIdle}, "")
		}
	}

	cancelActive := func(reason string) {
		rec, capture := active.rec, active.cap
		clearActive()
		capture.Discard()
		rec.State = StateCancelled
		rec.CancelReason = reason
		rec.EndedAt = time.Now()
		c.logger.Info("session cancelled",
			"session_id", rec.ID,
			"trace_id", rec.TraceID,
			"reason", reason,
		)
		c.publish(notify.State{
			Phase:     notify.PhaseCancelled,
			SessionID: rec.ID,
			Reason:    reason,
		}, rec.TraceID)
		settle()
	}

	supersede := func(req *request) {
		req.cancel()
		req.rec.State = StateCancelled
		req.rec.CancelReason = ReasonSuperseded
		req.rec.EndedAt = time.Now()
		c.logger.Info("pending transcription superseded",
			"session_id", req.rec.ID,
			"trace_id", req.rec.TraceID,
		)
		c.publish(notify.State{
			Phase:     notify.PhaseCancelled,
			SessionID: req.rec.ID,
			Reason:    ReasonSuperseded,
		}, req.rec.TraceID)
	}

	shutdown := func() {
		if active != nil {
			cancelActive(ReasonShutdown)
		}
		if waiting != nil {
			supersede(waiting)
			waiting = nil
		}
		if inflight != nil {
			inflight.cancel()
		}
	}

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return

		case ev, ok := <-events:
			if !ok {
				shutdown()
				return
			}
			switch ev.Kind {
			case fsm.SessionShouldStart:
				if active != nil {
					c.logger.Warn("session start rejected",
						"reason", "session_active",
						"session_id", active.rec.ID,
					)
					continue
				}
				c.mu.Lock()
				c.nextID++
				id := c.nextID
				c.mu.Unlock()

				rec := &Record{
					ID:        id,
					TraceID:   uuid.NewString(),
					State:     StateCapturing,
					StartedAt: ev.At,
				}
				// Armed covers the window between the accepted gesture
				// and the device grant; observers see it even when
				// capture acquisition fails right after.
				c.publish(notify.State{
					Phase:           notify.PhaseArmed,
					SessionID:       rec.ID,
					ConflictWarning: ev.ConflictWarning,
				}, rec.TraceID)

				capture := c.captures()
				if err := capture.Start(ctx); err != nil {
					rec.State = StateFailed
					rec.Err = err
					rec.EndedAt = time.Now()
					c.logger.Error("capture start failed",
						"session_id", rec.ID,
						"trace_id", rec.TraceID,
						"error", err.Error(),
					)
					c.publish(notify.State{
						Phase:     notify.PhaseFailed,
						SessionID: rec.ID,
						Err:       err.Error(),
					}, rec.TraceID)
					settle()
					continue
				}

				active = &activeCapture{rec: rec, cap: capture}
				faults = capture.Faults()
				activity = capture.Activity()
				c.logger.Info("session started",
					"session_id", rec.ID,
					"trace_id", rec.TraceID,
					"conflict_warning", ev.ConflictWarning,
				)
				c.publish(notify.State{
					Phase:           notify.PhaseCapturing,
					SessionID:       rec.ID,
					ConflictWarning: ev.ConflictWarning,
				}, rec.TraceID)

			case fsm.SessionShouldEnd:
				if active == nil {
					c.logger.Debug("gesture end without active session")
					continue
				}
				rec, capture := active.rec, active.cap
				clearActive()
				rec.Held = ev.Held
				snap := capture.Stop()
				if snap.Empty() {
					rec.State = StateCompleted
					rec.EndedAt = time.Now()
					c.logger.Info("capture produced no audio",
						"session_id", rec.ID,
						"trace_id", rec.TraceID,
					)
					c.publish(notify.State{
						Phase:     notify.PhaseCompleted,
						SessionID: rec.ID,
					}, rec.TraceID)
					settle()
					continue
				}

				rec.State = StateFinalizing
				rec.Truncated = snap.Truncated
				c.logger.Info("capture finalized",
					"session_id", rec.ID,
					"trace_id", rec.TraceID,
					"held_ms", ev.Held.Milliseconds(),
					"seconds", snap.Duration(),
					"truncated", snap.Truncated,
				)
				c.publish(notify.State{
					Phase:     notify.PhaseProcessing,
					SessionID: rec.ID,
				}, rec.TraceID)

				reqCtx, cancel := context.WithTimeout(ctx, c.cfg.EngineDeadline)
				req := &request{rec: rec, snap: snap, ctx: reqCtx, cancel: cancel}
				if inflight == nil {
					inflight = req
					go c.transcribe(req)
				} else {
					if waiting != nil {
						supersede(waiting)
					}
					waiting = req
				}

			case fsm.SessionShouldCancel:
				if active == nil {
					c.logger.Debug("gesture cancel without active session",
						"reason", string(ev.Reason),
					)
					continue
				}
				cancelActive(string(ev.Reason))
			}

		case err := <-faults:
			if active == nil {
				continue
			}
			active.rec.Err = err
			cancelActive(ReasonDeviceLost)

		case act := <-activity:
			if active == nil {
				continue
			}
			c.publish(notify.State{
				Phase:       notify.PhaseCapturing,
				SessionID:   active.rec.ID,
				VoiceActive: act == audio.Voice,
			}, active.rec.TraceID)

		case reason := <-c.cancels:
			if active != nil {
				cancelActive(reason)
				continue
			}
			if waiting != nil {
				req := waiting
				waiting = nil
				req.cancel()
				req.rec.State = StateCancelled
				req.rec.CancelReason = reason
				req.rec.EndedAt = time.Now()
				c.logger.Info("pending transcription cancelled",
					"session_id", req.rec.ID,
					"trace_id", req.rec.TraceID,
					"reason", reason,
				)
				c.publish(notify.State{
					Phase:     notify.PhaseCancelled,
					SessionID: req.rec.ID,
					Reason:    reason,
				}, req.rec.TraceID)
				continue
			}
			if inflight != nil {
				// The engine call keeps running until the context
				// cancellation lands; its result is discarded on arrival.
				rec := inflight.rec
				rec.State = StateCancelled
				rec.CancelReason = reason
				rec.EndedAt = time.Now()
				inflight.cancel()
				c.logger.Info("in-flight transcription cancelled",
					"session_id", rec.ID,
					"trace_id", rec.TraceID,
					"reason", reason,
				)
				c.publish(notify.State{
					Phase:     notify.PhaseCancelled,
					SessionID: rec.ID,
					Reason:    reason,
				}, rec.TraceID)
			}

		case chord := <-c.chords:
			if active == nil {
				c.applyChord(chord)
				c.logger.Info("chord updated", "chord", chord.String())
			} else {
				pendingChord = &chord
				c.logger.Info("chord update deferred",
					"chord", chord.String(),
					"session_id", active.rec.ID,
				)
			}

		case out := <-c.results:
			inflight = nil
			c.settleOutcome(out)
			if waiting != nil {
				inflight = waiting
				waiting = nil
				go c.transcribe(inflight)
			}
			settle()
		}
	}
}

// transcribe runs one engine request off the loop goroutine.
func (c *Coordinator) transcribe(req *request) {
	res, err := c.engine.Transcribe(req.ctx, req.snap)
	req.cancel()
	c.results <- outcome{req: req, res: res, err: err}
}

// settleOutcome applies one transcription result to its record.
// Results for cancelled sessions are discarded without insertion.
func (c *Coordinator) settleOutcome(out outcome) {
	rec := out.req.rec
	rec.EndedAt = time.Now()

	if rec.State == StateCancelled {
		c.logger.Info("stale transcription result discarded",
			"session_id", rec.ID,
			"trace_id", rec.TraceID,
		)
		return
	}

	if out.err != nil {
		rec.State = StateFailed
		rec.Err = out.err
		c.logger.Error("transcription failed",
			"session_id", rec.ID,
			"trace_id", rec.TraceID,
			"error", out.err.Error(),
		)
		c.publish(notify.State{
			Phase:     notify.PhaseFailed,
			SessionID: rec.ID,
			Err:       out.err.Error(),
		}, rec.TraceID)
		return
	}

	text := transcript.Normalize(out.res.Text, c.cfg.Transcript)
	if text == "" {
		rec.State = StateCompleted
		c.logger.Info("no speech detected",
			"session_id", rec.ID,
			"trace_id", rec.TraceID,
		)
		c.publish(notify.State{
			Phase:     notify.PhaseCompleted,
			SessionID: rec.ID,
		}, rec.TraceID)
		return
	}

	insertCtx, cancel := context.WithTimeout(context.Background(), c.cfg.InsertTimeout)
	defer cancel()
	if err := c.sink.Insert(insertCtx, text); err != nil {
		rec.State = StateFailed
		rec.Err = err
		rec.Transcript = text
		c.logger.Error("text insertion failed",
			"session_id", rec.ID,
			"trace_id", rec.TraceID,
			"error", err.Error(),
		)
		c.publish(notify.State{
			Phase:     notify.PhaseFailed,
			SessionID: rec.ID,
			Err:       err.Error(),
		}, rec.TraceID)
		return
	}

	rec.State = StateCompleted
	rec.Transcript = text
	c.logger.Info("transcript inserted",
		"session_id", rec.ID,
		"trace_id", rec.TraceID,
		"chars", len(text),
		"confidence", out.res.Confidence,
	)
	c.publish(notify.State{
		Phase:     notify.PhaseCompleted,
		SessionID: rec.ID,
	}, rec.TraceID)
}

// publish mirrors the state for Status and fans it out to observers.
func (c *Coordinator) publish(state notify.State, traceID string) {
	c.mu.Lock()
	c.status = Status{Phase: state.Phase, SessionID: state.SessionID, TraceID: traceID}
	c.mu.Unlock()
	c.notifier.Publish(state)
}

// unavailableEngine keeps the pipeline non-nil when no engine is wired.
type unavailableEngine struct{}

func (unavailableEngine) Transcribe(context.Context, audio.Snapshot) (engine.Result, error) {
	return engine.Result{}, engine.ErrUnavailable
}

func (unavailableEngine) Close() error { return nil }
