package config

import (
	"fmt"
	"strings"

	"github.com/mkessler/parlo/internal/keys"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	chord, err := keys.Parse(cfg.Hotkey.Chord)
	if err != nil {
		return nil, fmt.Errorf("hotkey.chord: %w", err)
	}
	if keys.Reserved(chord) {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("hotkey.chord %q collides with a desktop shortcut; activation may be unreliable", cfg.Hotkey.Chord),
		})
	}

	if cfg.Hotkey.MinHoldMS < 0 {
		return nil, fmt.Errorf("hotkey.min_hold_ms must be >= 0")
	}
	if cfg.Hotkey.MinHoldMS > 2000 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("hotkey.min_hold_ms=%d is unusually long; short dictations will be rejected", cfg.Hotkey.MinHoldMS),
		})
	}

	if cfg.Audio.MaxCaptureSeconds <= 0 {
		return nil, fmt.Errorf("audio.max_capture_seconds must be > 0")
	}
	if cfg.Audio.MaxCaptureSeconds > 600 {
		return nil, fmt.Errorf("audio.max_capture_seconds must be <= 600")
	}

	if cfg.VAD.Threshold < 0 {
		return nil, fmt.Errorf("vad.threshold must be >= 0")
	}
	if cfg.VAD.HangoverChunks < 0 {
		return nil, fmt.Errorf("vad.hangover_chunks must be >= 0")
	}

	if cfg.Engine.DeadlineSeconds <= 0 {
		return nil, fmt.Errorf("engine.deadline_seconds must be > 0")
	}
	if strings.TrimSpace(cfg.Engine.Language) == "" {
		return nil, fmt.Errorf("engine.language must not be empty")
	}

	if len(cfg.Insert.TypeCmd.Argv) == 0 && len(cfg.Insert.ClipboardCmd.Argv) == 0 {
		return nil, fmt.Errorf("insert requires at least one of type_cmd or clipboard_cmd")
	}

	return warnings, nil
}
