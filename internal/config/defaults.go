package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	typeCmd := "wtype -"
	clipboardCmd := "wl-copy --trim-newline"

	return Config{
		Hotkey: HotkeyConfig{
			Chord:     "ctrl+alt",
			MinHoldMS: 100,
		},
		Audio: AudioConfig{
			Input:             "default",
			Fallback:          "default",
			MaxCaptureSeconds: 60,
		},
		VAD: VADConfig{
			Threshold:      450,
			HangoverChunks: 8,
		},
		Engine: EngineConfig{
			ModelPath:       "",
			Language:        "en",
			DeadlineSeconds: 20,
		},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
		},
		Insert: InsertConfig{
			TypeCmd:      CommandConfig{Raw: typeCmd, Argv: mustParseArgv(typeCmd)},
			ClipboardCmd: CommandConfig{Raw: clipboardCmd, Argv: mustParseArgv(clipboardCmd)},
		},
		Feedback: FeedbackConfig{
			Notifications: true,
			Sounds:        true,
			AppName:       "parlo",
		},
	}
}

// mustParseArgv panics on malformed built-in defaults; only called on
// literals defined in this package.
func mustParseArgv(raw string) []string {
	argv, err := parseArgv(raw)
	if err != nil {
		panic(err)
	}
	return argv
}
