// Package doctor runs runtime readiness diagnostics for config, input,
// audio, the model, and insertion tools.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mkessler/parlo/internal/audio"
	"github.com/mkessler/parlo/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", cfg.Path)
	if len(cfg.Warnings) > 0 {
		msgs := make([]string, 0, len(cfg.Warnings))
		for _, w := range cfg.Warnings {
			msgs = append(msgs, w.Message)
		}
		configMsg += " (" + strings.Join(msgs, "; ") + ")"
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkInputDevices())
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkModel(cfg.Config))

	if argv := cfg.Config.Insert.TypeCmd.Argv; len(argv) > 0 {
		checks = append(checks, checkCommand(argv, "insert.type_cmd"))
	}
	if argv := cfg.Config.Insert.ClipboardCmd.Argv; len(argv) > 0 {
		checks = append(checks, checkCommand(argv, "insert.clipboard_cmd"))
	}
	if len(cfg.Config.Insert.TypeCmd.Argv) == 0 && len(cfg.Config.Insert.ClipboardCmd.Argv) == 0 {
		checks = append(checks, Check{Name: "insert", Pass: false, Message: "no insertion command configured"})
	}

	return Report{Checks: checks}
}

// checkInputDevices verifies at least one readable keyboard event node.
func checkInputDevices() Check {
	const name = "input.devices"

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(paths) == 0 {
		return Check{Name: name, Pass: false, Message: "no /dev/input/event* nodes found"}
	}

	readable := 0
	for _, path := range paths {
		f, openErr := os.Open(path)
		if openErr == nil {
			_ = f.Close()
			readable++
		}
	}
	if readable == 0 {
		return Check{
			Name:    name,
			Pass:    false,
			Message: fmt.Sprintf("%d event nodes present but none readable (add user to the input group)", len(paths)),
		}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%d of %d event nodes readable", readable, len(paths))}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", argv[0])}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found at %s", path)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkModel verifies the configured model file exists and is non-empty.
func checkModel(cfg config.Config) Check {
	const name = "engine.model"

	path := strings.TrimSpace(cfg.Engine.ModelPath)
	if path == "" {
		return Check{Name: name, Pass: false, Message: "engine.model_path is empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("model not found: %s", path)}
	}
	if info.IsDir() || info.Size() == 0 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("model is not a regular file: %s", path)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s (%d MiB)", path, info.Size()/(1<<20))}
}
