//go:build !windows

package manager

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/dreamsxin/memrecycle/types"
)

// createCommand creates a Unix-specific command in its own process group,
// so signals aimed at the recycler do not reach the relaunched app
func createCommand(spec types.LaunchSpec) *exec.Cmd {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

// requestClose sends SIGTERM
func requestClose(ctx context.Context, h *types.ProcessHandle) error {
	err := h.Proc.SendSignalWithContext(ctx, unix.SIGTERM)
	// 如果进程已经不存在，忽略错误
	if errors.Is(err, unix.ESRCH) || errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, process.ErrorProcessNotRunning) {
		return nil
	}
	return err
}
