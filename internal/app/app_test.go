package app

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkessler/parlo/internal/ipc"
)

type runnerPaths struct {
	runtimeDir string
	configPath string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	home := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("HOME", home)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configBody := "hotkey:\n  chord: ctrl+alt\n"
	require.NoError(t, os.WriteFile(configPath, []byte(configBody), 0o600))

	return runnerPaths{runtimeDir: runtimeDir, configPath: configPath}
}

func startIPCServerForTest(t *testing.T, socketPath string, handler ipc.HandlerFunc) {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- ipc.Serve(ctx, nil, listener, handler)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-serveDone)
	})
}

func TestExecuteHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "parlo")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerStatusIdleWhenNoDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerStatusReportsDaemonPhase(t *testing.T) {
	paths := setupRunnerEnv(t)
	startIPCServerForTest(t, filepath.Join(paths.runtimeDir, "parlo.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, "status", req.Command)
		return ipc.Response{OK: true, Phase: "capturing", Chord: "ctrl+alt"}
	})

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "capturing (chord ctrl+alt)\n", stdout.String())
}

func TestRunnerCancelFailsWithoutDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "cancel"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no running parlo daemon")
}

func TestRunnerCancelForwardsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)
	commands := make(chan string, 4)
	startIPCServerForTest(t, filepath.Join(paths.runtimeDir, "parlo.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		commands <- req.Command
		return ipc.Response{OK: true, Message: "cancel requested"}
	})

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "cancel"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "cancel requested")
	require.Equal(t, "cancel", <-commands)
}

func TestRunnerChordForwardsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)
	startIPCServerForTest(t, filepath.Join(paths.runtimeDir, "parlo.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, "chord", req.Command)
		require.Equal(t, "ctrl+shift", req.Chord)
		return ipc.Response{OK: true, Chord: req.Chord, Message: "chord set to ctrl+shift"}
	})

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "chord", "ctrl+shift"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "chord set to ctrl+shift")
}

func TestRunnerChordSavesWithoutDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "chord", "ctrl+shift+space"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "chord set to ctrl+shift+space")

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "chord"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "ctrl+shift+space\n", stdout.String())
}

func TestRunnerChordRejectsBadSpec(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "chord", "not+a+key"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerChordPrintsConfigDefaultWhenUnsaved(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "chord"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "ctrl+alt\n", stdout.String())
}
