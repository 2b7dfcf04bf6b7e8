package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "double quoted", input: `notify-send "hello there"`, want: []string{"notify-send", "hello there"}},
		{name: "single quoted", input: `sh -c 'echo hi'`, want: []string{"sh", "-c", "echo hi"}},
		{name: "escaped space", input: `cat my\ file`, want: []string{"cat", "my file"}},
		{name: "empty quoted arg", input: `prog ""`, want: []string{"prog", ""}},
		{name: "unterminated quote", input: `prog "oops`, wantErr: true},
		{name: "dangling escape", input: `prog oops\`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			argv, err := parseArgv(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, argv)
		})
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty chord", mutate: func(c *Config) { c.Hotkey.Chord = "" }},
		{name: "unknown chord key", mutate: func(c *Config) { c.Hotkey.Chord = "ctrl+nope" }},
		{name: "negative hold", mutate: func(c *Config) { c.Hotkey.MinHoldMS = -1 }},
		{name: "zero capture bound", mutate: func(c *Config) { c.Audio.MaxCaptureSeconds = 0 }},
		{name: "huge capture bound", mutate: func(c *Config) { c.Audio.MaxCaptureSeconds = 3600 }},
		{name: "negative vad threshold", mutate: func(c *Config) { c.VAD.Threshold = -1 }},
		{name: "zero deadline", mutate: func(c *Config) { c.Engine.DeadlineSeconds = 0 }},
		{name: "empty language", mutate: func(c *Config) { c.Engine.Language = " " }},
		{name: "no insert commands", mutate: func(c *Config) {
			c.Insert.TypeCmd = CommandConfig{}
			c.Insert.ClipboardCmd = CommandConfig{}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
		})
	}
}

func TestValidateReservedChordWarns(t *testing.T) {
	cfg := Default()
	cfg.Hotkey.Chord = "alt+tab"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "desktop shortcut")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.False(t, loaded.Exists)
	require.Equal(t, Default().Hotkey.Chord, loaded.Config.Hotkey.Chord)
	require.NotEmpty(t, loaded.Warnings)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
hotkey:
  chord: super+space
  min_hold_ms: 150
audio:
  max_capture_seconds: 30
insert:
  type_cmd: "wtype -"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, "super+space", loaded.Config.Hotkey.Chord)
	require.Equal(t, 150, loaded.Config.Hotkey.MinHoldMS)
	require.Equal(t, 30, loaded.Config.Audio.MaxCaptureSeconds)
	require.Equal(t, []string{"wtype", "-"}, loaded.Config.Insert.TypeCmd.Argv)
	// untouched sections keep defaults
	require.Equal(t, Default().Engine.DeadlineSeconds, loaded.Config.Engine.DeadlineSeconds)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hotkye:\n  chord: ctrl+alt\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hotkey:\n  chord: ctrl+banana\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validate config")
}

func TestResolvePathPrefersExplicitThenXDG(t *testing.T) {
	path, err := ResolvePath("/tmp/custom.yaml")
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.yaml", path)

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg/parlo/config.yaml", path)
}
