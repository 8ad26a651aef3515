package monitor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/memrecycle/types"
)

func TestLocateMissingProcess(t *testing.T) {
	m := NewProcessMonitor(zerolog.Nop())

	handle, err := m.Locate(context.Background(), "memrecycle-no-such-process-7f3a")
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, ErrProcessNotRunning)
	assert.True(t, IsNotRunning(err))
}

func TestLocateSelfAndSample(t *testing.T) {
	ctx := context.Background()
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	require.NoError(t, err)
	name, err := self.NameWithContext(ctx)
	require.NoError(t, err)

	m := NewProcessMonitor(zerolog.Nop())
	handle, err := m.Locate(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.True(t, matchName(handle.Name, name))
	assert.NotZero(t, handle.CreateTime)

	mb, err := m.Sample(ctx, handle)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mb, int64(0))
}

func TestLocateAllSortedByPID(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	ctx := context.Background()

	var cmds []*exec.Cmd
	for i := 0; i < 2; i++ {
		cmd := exec.Command("sleep", "30")
		require.NoError(t, cmd.Start())
		cmds = append(cmds, cmd)
	}
	t.Cleanup(func() {
		for _, cmd := range cmds {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})

	m := NewProcessMonitor(zerolog.Nop())
	handles, err := m.LocateAll(ctx, "sleep")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(handles), 2)
	for i := 1; i < len(handles); i++ {
		assert.Less(t, handles[i-1].PID, handles[i].PID)
	}

	first, err := m.Locate(ctx, "sleep")
	require.NoError(t, err)
	assert.Equal(t, handles[0].PID, first.PID)
}

func TestSampleAfterExitIsUnavailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	ctx := context.Background()

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	proc, err := process.NewProcessWithContext(ctx, int32(cmd.Process.Pid))
	require.NoError(t, err)
	createTime, err := proc.CreateTimeWithContext(ctx)
	require.NoError(t, err)
	handle := &types.ProcessHandle{PID: proc.Pid, Name: "sleep", CreateTime: createTime, Proc: proc}

	require.True(t, Alive(ctx, handle))

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	require.Eventually(t, func() bool { return !Alive(ctx, handle) }, 2*time.Second, 20*time.Millisecond)

	_, err = NewProcessMonitor(zerolog.Nop()).Sample(ctx, handle)
	assert.ErrorIs(t, err, ErrSampleUnavailable)
	assert.True(t, IsNotRunning(err))
}

func TestSampleNilHandle(t *testing.T) {
	_, err := NewProcessMonitor(zerolog.Nop()).Sample(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSampleUnavailable)
}

func TestResidentFallbackWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	m := NewProcessMonitor(zerolog.New(&buf))

	m.noteFallback(42)
	m.noteFallback(43)

	assert.Equal(t, 1, strings.Count(buf.String(), "Private working set unavailable"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"pid":42`)
}
