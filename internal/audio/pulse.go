package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const chunkSizeBytes = ChunkSamples * 2 // 20ms @ 16kHz mono s16

// PulseOpener opens capture streams against the PulseAudio server.
type PulseOpener struct {
	// Input and Fallback are device preferences by id or description
	// substring; empty or "default" selects the server default.
	Input    string
	Fallback string
}

// Open resolves the device preference and starts a 16kHz mono s16
// record stream.
func (o PulseOpener) Open(ctx context.Context) (Stream, error) {
	selection, err := SelectDevice(ctx, o.Input, o.Fallback)
	if err != nil {
		return nil, err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parlo"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		if errIsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrDeviceUnavailable, err)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrDeviceUnavailable, selection.Device.ID, err)
	}

	ps := &pulseStream{
		device: selection.Device,
		client: client,
		chunks: make(chan []int16, 128),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(ps.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("parlo dictation"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrFormatUnsupported, err)
	}

	ps.stream = stream
	stream.Start()
	return ps, nil
}

// pulseStream adapts one Pulse record stream to the Stream contract.
// The pulse write callback is the sole producer; it converts raw
// little-endian bytes to samples and emits fixed-size chunks.
type pulseStream struct {
	device Device
	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []int16
	stopCh chan struct{}

	mu      sync.Mutex
	pending []int16
	stopped bool
	err     error

	inflight sync.WaitGroup
}

func (p *pulseStream) Chunks() <-chan []int16 {
	return p.chunks
}

func (p *pulseStream) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close halts the stream, flushes residual samples, and closes Chunks
// exactly once.
func (p *pulseStream) Close() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
	}
	if p.client != nil {
		p.client.Close()
	}

	p.inflight.Wait()

	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(pending) > 0 {
		chunk := make([]int16, len(pending))
		copy(chunk, pending)
		select {
		case p.chunks <- chunk:
		default:
		}
	}

	close(p.chunks)
	return nil
}

// onPCM receives raw Pulse frames and emits ChunkSamples slices.
func (p *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-p.stopCh:
		return 0, io.EOF
	default:
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as p.stopped to avoid Add/Wait races.
	p.inflight.Add(1)

	for i := 0; i+1 < len(buffer); i += 2 {
		p.pending = append(p.pending, int16(uint16(buffer[i])|uint16(buffer[i+1])<<8))
	}

	chunks := make([][]int16, 0, len(p.pending)/ChunkSamples)
	for len(p.pending) >= ChunkSamples {
		chunk := make([]int16, ChunkSamples)
		copy(chunk, p.pending[:ChunkSamples])
		p.pending = p.pending[ChunkSamples:]
		chunks = append(chunks, chunk)
	}
	p.mu.Unlock()
	defer p.inflight.Done()

	for _, chunk := range chunks {
		select {
		case <-p.stopCh:
			return 0, io.EOF
		case p.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
