package manager

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/memrecycle/monitor"
	"github.com/dreamsxin/memrecycle/types"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses unix commands")
	}
}

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func handleFor(t *testing.T, pid int) *types.ProcessHandle {
	t.Helper()
	proc, err := process.NewProcess(int32(pid))
	require.NoError(t, err)
	created, err := proc.CreateTime()
	require.NoError(t, err)
	name, _ := proc.Name()
	return &types.ProcessHandle{PID: int32(pid), Name: name, CreateTime: created, Proc: proc}
}

func newTestManager(opts Options) *ProcessManager {
	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	return NewProcessManager(opts, zerolog.Nop())
}

func TestLaunchCaptureTerminate(t *testing.T) {
	skipOnWindows(t)
	sleepPath := lookPath(t, "sleep")
	dir := t.TempDir()

	pm := newTestManager(Options{GraceTimeout: 5 * time.Second, KillTimeout: 2 * time.Second, RestoreArgs: true})
	pid, err := pm.Launch(types.LaunchSpec{Path: sleepPath, Args: []string{"30"}, Dir: dir})
	require.NoError(t, err)
	require.Positive(t, pid)

	h := handleFor(t, pid)
	ctx := context.Background()
	require.True(t, monitor.Alive(ctx, h))

	spec, err := pm.Capture(ctx, h)
	require.NoError(t, err)
	assert.FileExists(t, spec.Path)
	assert.Equal(t, []string{"30"}, spec.Args)

	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(spec.Dir)
	assert.Equal(t, wantDir, gotDir)

	res, err := pm.Terminate(ctx, h)
	require.NoError(t, err)
	assert.True(t, res.Graceful)
	assert.False(t, res.Forced)
	assert.False(t, monitor.Alive(ctx, h))

	// terminating an instance that is already gone is not an error
	res, err = pm.Terminate(ctx, h)
	require.NoError(t, err)
	assert.True(t, res.Graceful)
}

func TestCaptureWithoutRestoreArgs(t *testing.T) {
	skipOnWindows(t)
	sleepPath := lookPath(t, "sleep")

	pm := newTestManager(Options{})
	pid, err := pm.Launch(types.LaunchSpec{Path: sleepPath, Args: []string{"30"}})
	require.NoError(t, err)

	h := handleFor(t, pid)
	t.Cleanup(func() { _ = h.Proc.Kill() })

	spec, err := pm.Capture(context.Background(), h)
	require.NoError(t, err)
	assert.NotEmpty(t, spec.Path)
	assert.Empty(t, spec.Args)
	assert.Empty(t, spec.Dir)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	skipOnWindows(t)
	shPath := lookPath(t, "sh")

	pm := newTestManager(Options{GraceTimeout: 300 * time.Millisecond, KillTimeout: 2 * time.Second})
	pid, err := pm.Launch(types.LaunchSpec{Path: shPath, Args: []string{"-c", `trap "" TERM; exec sleep 30`}})
	require.NoError(t, err)

	// give the shell time to install the trap
	time.Sleep(300 * time.Millisecond)

	h := handleFor(t, pid)
	res, err := pm.Terminate(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.False(t, res.Graceful)
	assert.False(t, monitor.Alive(context.Background(), h))
}

func TestTerminateHonorsContext(t *testing.T) {
	skipOnWindows(t)
	shPath := lookPath(t, "sh")

	pm := newTestManager(Options{GraceTimeout: 10 * time.Second})
	pid, err := pm.Launch(types.LaunchSpec{Path: shPath, Args: []string{"-c", `trap "" TERM; exec sleep 30`}})
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	h := handleFor(t, pid)
	t.Cleanup(func() { _ = h.Proc.Kill() })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = pm.Terminate(ctx, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLaunchFailures(t *testing.T) {
	pm := newTestManager(Options{})

	_, err := pm.Launch(types.LaunchSpec{})
	assert.ErrorIs(t, err, ErrRelaunchFailed)

	_, err = pm.Launch(types.LaunchSpec{Path: filepath.Join(t.TempDir(), "missing-binary")})
	assert.ErrorIs(t, err, ErrRelaunchFailed)
}

func TestCaptureRejectsDeadHandles(t *testing.T) {
	pm := newTestManager(Options{})

	_, err := pm.Capture(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.ErrorIs(t, err, monitor.ErrProcessNotRunning)

	// the test binary itself, but with a create time that does not match
	self := handleFor(t, os.Getpid())
	self.CreateTime++
	_, err = pm.Capture(context.Background(), self)
	assert.ErrorIs(t, err, ErrCaptureFailed)
}

func TestTerminateNilHandle(t *testing.T) {
	_, err := newTestManager(Options{}).Terminate(context.Background(), nil)
	assert.ErrorIs(t, err, monitor.ErrProcessNotRunning)
}
