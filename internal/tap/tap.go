package tap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mkessler/parlo/internal/keys"
)

var (
	// ErrPermissionDenied indicates the process lacks input-monitoring
	// rights (typically /dev/input group membership).
	ErrPermissionDenied = errors.New("input monitoring permission denied")
	// ErrTapInstall covers any other failure to install the interceptor.
	ErrTapInstall = errors.New("global key tap installation failed")
	// ErrNotStarted rejects operations on a stopped tap.
	ErrNotStarted = errors.New("tap is not started")
	// ErrTapClosed rejects restarting a tap whose intent stream has
	// already closed.
	ErrTapClosed = errors.New("tap already stopped")
)

// Source is an OS backend that observes raw key transitions. Events
// must arrive on the channel in the order the OS reported them, and
// the producing callback must never block beyond the channel send.
type Source interface {
	// Start begins event delivery. Implementations wrap authorization
	// failures in ErrPermissionDenied and anything else in ErrTapInstall.
	Start(ctx context.Context) error
	// Events yields normalized key transitions in temporal order.
	Events() <-chan KeyEvent
	// Close releases the backend; safe to call more than once.
	Close() error
}

// Tap drives the gesture classifier over a Source's event stream and
// publishes intents for exactly one configured chord.
type Tap struct {
	logger *slog.Logger
	source Source

	mu      sync.Mutex
	chord   keys.Chord
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	intents chan Intent
}

// New builds a tap over the given source. The source is owned by the
// tap after Start and released by Stop.
func New(logger *slog.Logger, source Source) *Tap {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tap{
		logger:  logger,
		source:  source,
		intents: make(chan Intent, 16),
	}
}

// Intents yields classified gesture transitions in temporal order.
// The channel closes when the tap stops.
func (t *Tap) Intents() <-chan Intent {
	return t.intents
}

// Start installs the interceptor for the given chord. Calling Start
// while running swaps the chord without reinstalling the source.
func (t *Tap) Start(ctx context.Context, chord keys.Chord) error {
	if err := chord.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.chord = chord
		t.logger.Info("tap chord replaced", "chord", chord.String())
		return nil
	}
	// The intent channel closes when run exits, so a stopped tap
	// cannot be relaunched.
	if t.stopped {
		return ErrTapClosed
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := t.source.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start key event source: %w", err)
	}

	done := make(chan struct{})
	t.chord = chord
	t.running = true
	t.cancel = cancel
	t.done = done
	go t.run(runCtx, done)

	t.logger.Info("tap installed", "chord", chord.String())
	return nil
}

// UpdateChord atomically swaps the comparison target. A gesture whose
// evaluation began before the swap finishes against its snapshot.
func (t *Tap) UpdateChord(chord keys.Chord) error {
	if err := chord.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNotStarted
	}
	t.chord = chord
	t.logger.Info("tap chord replaced", "chord", chord.String())
	return nil
}

// Stop removes the interceptor; safe to call when not started.
func (t *Tap) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.stopped = true
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	cancel()
	_ = t.source.Close()
	<-done
}

// run is the sequencing loop: it owns the classifier, keeps intent
// order identical to event order, and does nothing heavier per event
// than chord comparison.
func (t *Tap) run(ctx context.Context, done chan struct{}) {
	defer close(t.intents)
	defer close(done)

	var cl classifier
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-t.source.Events():
			if !ok {
				return
			}

			t.mu.Lock()
			cl.setChord(t.chord)
			t.mu.Unlock()

			intent, emitted := cl.feed(ev)
			if !emitted {
				continue
			}
			select {
			case t.intents <- intent:
			case <-ctx.Done():
				return
			}
		}
	}
}
