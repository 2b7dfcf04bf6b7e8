// Package audio owns microphone capture sessions: device selection,
// circular sample buffering, and the voice-activity signal.
package audio

// ring is a fixed-capacity circular buffer of PCM samples. When full,
// the oldest samples are overwritten; the buffer never grows, so a
// stuck-open gesture cannot exhaust memory. Not safe for concurrent
// use; the owning session serializes access.
type ring struct {
	samples []int16
	// next write position
	head int
	// total samples ever written; min(written, cap) are live
	written int64
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{samples: make([]int16, capacity)}
}

// write appends samples, overwriting the oldest on overflow.
func (r *ring) write(chunk []int16) {
	capacity := len(r.samples)
	if len(chunk) >= capacity {
		// only the newest capacity samples can survive
		copy(r.samples, chunk[len(chunk)-capacity:])
		r.head = 0
		r.written += int64(len(chunk))
		return
	}

	n := copy(r.samples[r.head:], chunk)
	if n < len(chunk) {
		copy(r.samples, chunk[n:])
	}
	r.head = (r.head + len(chunk)) % capacity
	r.written += int64(len(chunk))
}

// len reports the number of live samples.
func (r *ring) len() int {
	if r.written < int64(len(r.samples)) {
		return int(r.written)
	}
	return len(r.samples)
}

// overwritten reports whether overflow has discarded old samples.
func (r *ring) overwritten() bool {
	return r.written > int64(len(r.samples))
}

// snapshot copies the live samples in oldest-to-newest order.
func (r *ring) snapshot() []int16 {
	live := r.len()
	out := make([]int16, live)
	if live < len(r.samples) {
		copy(out, r.samples[:live])
		return out
	}
	n := copy(out, r.samples[r.head:])
	copy(out[n:], r.samples[:r.head])
	return out
}
