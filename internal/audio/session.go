package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// SampleRate is the fixed capture format: 16kHz mono s16.
const SampleRate = 16000

// ChunkSamples is 20ms of audio at SampleRate.
const ChunkSamples = 320

var (
	// ErrDeviceUnavailable indicates no usable input device.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrPermissionDenied indicates missing microphone authorization.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrFormatUnsupported indicates the device rejected 16kHz mono s16.
	ErrFormatUnsupported = errors.New("capture format unsupported")
	// ErrDeviceLost indicates the device vanished mid-capture; the
	// coordinator treats it as a cancellation, never a crash.
	ErrDeviceLost = errors.New("capture device lost")
)

// Snapshot is the immutable result of a stopped capture. Ownership
// transfers to the caller of Stop; the session keeps no reference.
type Snapshot struct {
	// Samples is mono s16 PCM at SampleRate, oldest first.
	Samples []int16
	// Truncated reports that the circular buffer overflowed and the
	// oldest audio was overwritten.
	Truncated bool
}

// Empty reports whether the snapshot holds no audio.
func (s Snapshot) Empty() bool {
	return len(s.Samples) == 0
}

// Duration returns the snapshot length in seconds.
func (s Snapshot) Duration() float64 {
	return float64(len(s.Samples)) / SampleRate
}

// Stream is one live capture feed from an opened device. Chunks closes
// when the stream ends; Err explains an abnormal end (device loss).
type Stream interface {
	Chunks() <-chan []int16
	Err() error
	Close() error
}

// Opener acquires the capture device and starts a stream.
type Opener interface {
	Open(ctx context.Context) (Stream, error)
}

// SessionConfig carries the capture policy knobs.
type SessionConfig struct {
	// MaxCaptureSeconds bounds the circular buffer.
	MaxCaptureSeconds int
	// VADThreshold is the RMS energy level that counts as voice.
	VADThreshold float64
	// VADHangoverChunks is the silence hysteresis depth.
	VADHangoverChunks int
}

// Session owns one microphone acquisition: a circular sample buffer
// filled by the stream drain goroutine, a voice-activity signal, and
// exactly one Stop or Discard. It knows nothing about hotkeys or
// transcription.
type Session struct {
	logger *slog.Logger
	opener Opener
	cfg    SessionConfig

	mu      sync.Mutex
	stream  Stream
	ring    *ring
	started bool
	stopped bool

	drained  chan struct{}
	activity chan Activity
	faults   chan error
}

// NewSession builds an idle session; Start acquires the device.
func NewSession(logger *slog.Logger, opener Opener, cfg SessionConfig) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxCaptureSeconds <= 0 {
		cfg.MaxCaptureSeconds = 60
	}
	return &Session{
		logger:   logger,
		opener:   opener,
		cfg:      cfg,
		activity: make(chan Activity, 8),
		faults:   make(chan error, 1),
	}
}

// Activity yields voice-activity transitions while capturing. Feedback
// only; consumers may lag or ignore it freely.
func (s *Session) Activity() <-chan Activity {
	return s.activity
}

// Faults reports a mid-capture device failure. At most one fault is
// ever delivered.
func (s *Session) Faults() <-chan error {
	return s.faults
}

// Start acquires the device and begins filling the circular buffer.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("capture session already started")
	}

	stream, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}

	s.stream = stream
	s.ring = newRing(s.cfg.MaxCaptureSeconds * SampleRate)
	s.started = true
	s.drained = make(chan struct{})
	go s.drain(stream)
	return nil
}

// drain is the sole writer of the ring buffer. It stops accepting
// frames the moment the stream closes; the final partial frame may be
// dropped, which is the accepted teardown policy.
func (s *Session) drain(stream Stream) {
	defer close(s.drained)

	det := newDetector(s.cfg.VADThreshold, s.cfg.VADHangoverChunks)
	for chunk := range stream.Chunks() {
		s.mu.Lock()
		if s.ring != nil {
			s.ring.write(chunk)
		}
		s.mu.Unlock()

		if state, changed := det.feed(chunk); changed {
			select {
			case s.activity <- state:
			default:
			}
		}
	}

	if err := stream.Err(); err != nil {
		s.logger.Warn("capture stream failed", "error", err.Error())
		select {
		case s.faults <- fmt.Errorf("%w: %v", ErrDeviceLost, err):
		default:
		}
	}
}

// Stop halts capture, flushes in-flight samples, and returns the
// accumulated immutable snapshot. The circular buffer and device are
// released before returning. Stop without Start, or a second Stop,
// returns an empty snapshot.
func (s *Session) Stop() Snapshot {
	ring := s.teardown()
	if ring == nil {
		return Snapshot{}
	}
	return Snapshot{
		Samples:   ring.snapshot(),
		Truncated: ring.overwritten(),
	}
}

// Discard tears down exactly like Stop but never exposes the audio;
// cancellation paths must not be able to inspect the buffer.
func (s *Session) Discard() {
	_ = s.teardown()
}

// teardown claims the stream exactly once, waits for the drain loop to
// flush in-flight chunks, and releases the ring buffer.
func (s *Session) teardown() *ring {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	_ = stream.Close()
	<-s.drained

	s.mu.Lock()
	ring := s.ring
	s.ring = nil
	s.mu.Unlock()
	return ring
}
