// Package insert delivers committed text to the focused input field.
package insert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mkessler/parlo/internal/config"
)

// ErrNoSink indicates no insertion command is configured.
var ErrNoSink = errors.New("no insertion command configured")

// Sink is the text-insertion contract consumed by the coordinator.
type Sink interface {
	Insert(ctx context.Context, text string) error
}

// Func adapts a function to the Sink interface.
type Func func(context.Context, string) error

func (f Func) Insert(ctx context.Context, text string) error {
	return f(ctx, text)
}

// CommandSink types text via an external tool, falling back to the
// clipboard command when typing fails. Delivery failure never rolls
// back the transcription; the text is considered produced either way.
type CommandSink struct {
	cfg    config.InsertConfig
	logger *slog.Logger
}

// NewCommandSink builds a sink from runtime config.
func NewCommandSink(cfg config.InsertConfig, logger *slog.Logger) *CommandSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CommandSink{cfg: cfg, logger: logger}
}

// Insert writes text to the type command's stdin; on failure it falls
// back to the clipboard command so the text is never silently lost.
func (s *CommandSink) Insert(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	typeArgv := s.cfg.TypeCmd.Argv
	clipArgv := s.cfg.ClipboardCmd.Argv
	if len(typeArgv) == 0 && len(clipArgv) == 0 {
		return ErrNoSink
	}

	if len(typeArgv) > 0 {
		typeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := runCommandWithInput(typeCtx, typeArgv, text)
		cancel()
		if err == nil {
			return nil
		}
		s.logger.Warn("type command failed", "command", typeArgv[0], "error", err.Error())
		if len(clipArgv) == 0 {
			return fmt.Errorf("type text: %w", err)
		}
	}

	clipCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := runCommandWithInput(clipCtx, clipArgv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// runCommandWithInput executes argv and writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
