// Package ipc exposes daemon control over a newline-delimited JSON
// unix-socket protocol.
package ipc

// Request is one control command sent to the running daemon.
type Request struct {
	// Command is one of: status, cancel, chord.
	Command string `json:"command"`
	// Chord carries the new binding spec for the chord command,
	// e.g. "ctrl+alt" or "ctrl+shift+space".
	Chord string `json:"chord,omitempty"`
}

// Response is the daemon's reply to one request.
type Response struct {
	OK bool `json:"ok"`
	// Phase is the pipeline phase at the time of the request.
	Phase     string `json:"phase,omitempty"`
	SessionID uint64 `json:"session_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	// Chord is the currently bound chord, reported by the status and
	// chord commands.
	Chord   string `json:"chord,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
