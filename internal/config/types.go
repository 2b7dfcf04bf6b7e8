// Package config resolves, parses, validates, and defaults parlo configuration.
package config

// Config is the fully materialized runtime configuration used by parlo.
type Config struct {
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Engine     EngineConfig     `yaml:"engine"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Insert     InsertConfig     `yaml:"insert"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
}

// HotkeyConfig controls the activation chord and gesture debounce.
type HotkeyConfig struct {
	// Chord is the activation spec, e.g. "ctrl+alt" or "super+space".
	Chord string `yaml:"chord"`
	// MinHoldMS is the minimum hold duration for a deliberate gesture;
	// shorter holds cancel as accidental taps.
	MinHoldMS int `yaml:"min_hold_ms"`
	// Devices optionally restricts which /dev/input event devices the
	// tap listens on; empty means all keyboards.
	Devices []string `yaml:"devices"`
}

// AudioConfig controls input-source selection and capture bounds.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
	// MaxCaptureSeconds bounds the circular sample buffer; once full,
	// the oldest audio is overwritten.
	MaxCaptureSeconds int `yaml:"max_capture_seconds"`
}

// VADConfig controls the energy-based voice activity signal.
type VADConfig struct {
	// Threshold is the mean-square energy level (0..32767 scale) above
	// which a chunk counts as voice.
	Threshold float64 `yaml:"threshold"`
	// HangoverChunks is the number of consecutive quiet chunks required
	// before the signal falls back to silence.
	HangoverChunks int `yaml:"hangover_chunks"`
}

// EngineConfig controls the local transcription engine.
type EngineConfig struct {
	ModelPath       string `yaml:"model_path"`
	Language        string `yaml:"language"`
	DeadlineSeconds int    `yaml:"deadline_seconds"`
}

// TranscriptConfig controls normalization applied before insertion.
type TranscriptConfig struct {
	TrailingSpace       bool `yaml:"trailing_space"`
	CapitalizeSentences bool `yaml:"capitalize_sentences"`
}

// InsertConfig controls how committed text reaches the focused input.
type InsertConfig struct {
	// TypeCmd receives the transcript on stdin and types it at the
	// cursor (e.g. "wtype -").
	TypeCmd CommandConfig `yaml:"type_cmd"`
	// ClipboardCmd receives the transcript on stdin as a fallback when
	// TypeCmd fails or is unset (e.g. "wl-copy --trim-newline").
	ClipboardCmd CommandConfig `yaml:"clipboard_cmd"`
}

// FeedbackConfig controls the optional user-feedback surfaces. Both
// are observers of the pipeline; disabling them never affects capture
// or transcription.
type FeedbackConfig struct {
	// Notifications toggles replaceable desktop notifications for the
	// capturing/processing/failed phases.
	Notifications bool `yaml:"notifications"`
	// Sounds toggles short synthesized audio cues on state changes.
	Sounds bool `yaml:"sounds"`
	// AppName is the notification source name shown by the desktop.
	AppName string `yaml:"app_name"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string   `yaml:"-"`
	Argv []string `yaml:"-"`
}

// MarshalYAML renders the raw command string.
func (c CommandConfig) MarshalYAML() (any, error) {
	return c.Raw, nil
}

// UnmarshalYAML parses the command string into argv form eagerly so
// validation can reject malformed quoting at load time.
func (c *CommandConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	argv, err := parseArgv(raw)
	if err != nil {
		return err
	}
	c.Raw = raw
	c.Argv = argv
	return nil
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
