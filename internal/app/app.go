// Package app wires the command line surface to the dictation daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/mkessler/parlo/internal/audio"
	"github.com/mkessler/parlo/internal/cli"
	"github.com/mkessler/parlo/internal/config"
	"github.com/mkessler/parlo/internal/doctor"
	"github.com/mkessler/parlo/internal/ipc"
	"github.com/mkessler/parlo/internal/keys"
	"github.com/mkessler/parlo/internal/logging"
	"github.com/mkessler/parlo/internal/settings"
	"github.com/mkessler/parlo/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("parlo"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("parlo"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.Request{Command: "cancel"})
	case cli.CommandChord:
		return r.commandChord(ctx, cfgLoaded.Config, parsed.Chord, logger)
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "status"})
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		phase := resp.Phase
		if phase == "" {
			phase = "idle"
		}
		if resp.Chord != "" {
			fmt.Fprintf(r.Stdout, "%s (chord %s)\n", phase, resp.Chord)
		} else {
			fmt.Fprintln(r.Stdout, phase)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

// commandChord prints or rebinds the push-to-talk chord. With a running
// daemon the change is forwarded; otherwise the saved binding is
// updated directly for the next daemon start.
func (r Runner) commandChord(ctx context.Context, cfg config.Config, spec string, logger *slog.Logger) int {
	store, err := settings.NewFileStore("")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if spec == "" {
		chord, loadErr := store.LoadChord()
		if errors.Is(loadErr, settings.ErrNoChord) {
			fmt.Fprintln(r.Stdout, cfg.Hotkey.Chord)
			return 0
		}
		if loadErr != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", loadErr)
			return 1
		}
		fmt.Fprintln(r.Stdout, chord.String())
		return 0
	}

	chord, err := keys.Parse(spec)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if keys.Reserved(chord) {
		fmt.Fprintf(r.Stderr, "warning: %q collides with a reserved shortcut\n", chord.String())
	}

	socketPath, pathErr := ipc.RuntimeSocketPath()
	if pathErr == nil {
		resp, handled, fwdErr := tryForward(ctx, socketPath, ipc.Request{Command: "chord", Chord: chord.String()})
		if handled {
			if fwdErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", fwdErr)
				return 1
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return 0
		}
	}

	if err := store.SaveChord(chord); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("save chord failed", "error", err.Error())
		return 1
	}
	fmt.Fprintf(r.Stdout, "chord set to %s\n", chord.String())
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no running parlo daemon")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
