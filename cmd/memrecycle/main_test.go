package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/memrecycle/ipc"
	"github.com/dreamsxin/memrecycle/manager"
	"github.com/dreamsxin/memrecycle/monitor"
	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/types"
)

type stubMonitor struct{ mb int64 }

func (s stubMonitor) Locate(_ context.Context, name string) (*types.ProcessHandle, error) {
	if s.mb < 0 {
		return nil, fmt.Errorf("%w: %s", monitor.ErrProcessNotRunning, name)
	}
	return &types.ProcessHandle{PID: 10, Name: name}, nil
}

func (s stubMonitor) Sample(context.Context, *types.ProcessHandle) (int64, error) {
	return s.mb, nil
}

type stubOps struct{}

func (stubOps) Capture(_ context.Context, h *types.ProcessHandle) (types.LaunchSpec, error) {
	return types.LaunchSpec{Path: "/opt/" + h.Name}, nil
}

func (stubOps) Terminate(context.Context, *types.ProcessHandle) (manager.TerminateResult, error) {
	return manager.TerminateResult{Graceful: true}, nil
}

func (stubOps) Launch(types.LaunchSpec) (int, error) { return 11, nil }

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// startDaemon serves a controller backed by stubs and returns the socket and config paths
func startDaemon(t *testing.T, mon monitor.Monitor) (string, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "mrcli")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "s.sock")
	configPath := filepath.Join(dir, "config.yaml")

	pol, err := policy.New(types.Policy{ProcessName: "MetroTwit", CheckIntervalMs: 120000, MemoryThresholdMB: 500}, nil, zerolog.Nop())
	require.NoError(t, err)
	ctrl := manager.NewController(pol, mon, stubOps{}, zerolog.Nop())

	srv, err := ipc.NewServer(context.Background(), socket, ctrl, policy.DefaultProcessChoices, zerolog.Nop())
	require.NoError(t, err)
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
		ctrl.Stop()
	})
	return socket, configPath
}

func TestConfigInitAndShow(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.yaml")

	out, _, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration")
	assert.FileExists(t, target)

	_, _, err = runCLI(t, "config", "init", "--path", target)
	assert.Error(t, err)

	out, _, err = runCLI(t, "--config", target, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "process_name: MetroTwit")
	assert.Contains(t, out, "grace_timeout: 30s")
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	_, _, err := runCLI(t, "--config", cfg, "--socket", filepath.Join(t.TempDir(), "missing.sock"), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestOperatorCommands(t *testing.T) {
	socket, cfg := startDaemon(t, stubMonitor{mb: 620})
	base := []string{"--config", cfg, "--socket", socket}

	out, _, err := runCLI(t, append(base, "recycle")...)
	require.NoError(t, err)
	assert.Contains(t, out, "restarted as pid 11")
	assert.Contains(t, out, "Outcome: recycled")

	out, _, err = runCLI(t, append(base, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Last recycle:")
	assert.Contains(t, out, "500 mb")

	out, _, err = runCLI(t, append(base, "set", "interval", "5", "mins")...)
	require.NoError(t, err)
	assert.Contains(t, out, "5 mins")

	_, _, err = runCLI(t, append(base, "set", "threshold", "0")...)
	assert.Error(t, err)

	out, _, err = runCLI(t, append(base, "choices", "interval")...)
	require.NoError(t, err)
	assert.Contains(t, out, "interval (current: 5 mins)")
	assert.Contains(t, out, "1 hour")

	out, _, err = runCLI(t, append(base, "status", "--json")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"check_interval_ms": 300000`)
}

func TestRecycleNotRunning(t *testing.T) {
	socket, cfg := startDaemon(t, stubMonitor{mb: -1})

	out, _, err := runCLI(t, "--config", cfg, "--socket", socket, "recycle")
	require.NoError(t, err)
	assert.Contains(t, out, "MetroTwit is not running")
}

// stallingOps holds Terminate until release is closed
type stallingOps struct {
	stubOps
	release chan struct{}
}

func (o stallingOps) Terminate(ctx context.Context, h *types.ProcessHandle) (manager.TerminateResult, error) {
	<-o.release
	return o.stubOps.Terminate(ctx, h)
}

func TestStatusAnsweredDuringStartupRecycle(t *testing.T) {
	dir, err := os.MkdirTemp("", "mrcli")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "s.sock")

	pol, err := policy.New(types.Policy{ProcessName: "MetroTwit", CheckIntervalMs: 120000, MemoryThresholdMB: 500}, nil, zerolog.Nop())
	require.NoError(t, err)
	ops := stallingOps{release: make(chan struct{})}
	ctrl := manager.NewController(pol, stubMonitor{mb: 900}, ops, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, socket, ctrl, policy.DefaultProcessChoices, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(ctx, zerolog.Nop(), ctrl, srv)
	}()
	t.Cleanup(func() {
		select {
		case <-ops.release:
		default:
			close(ops.release)
		}
		cancel()
		<-done
	})

	require.Eventually(t, ctrl.Busy, 2*time.Second, 5*time.Millisecond)

	base := []string{"--config", filepath.Join(dir, "config.yaml"), "--socket", socket}
	out, _, err := runCLI(t, append(base, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "MetroTwit")

	close(ops.release)
	require.Eventually(t, func() bool { return !ctrl.Busy() }, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, ctrl.Display().LastEvent)
}
