package manager

import (
	"context"
	"fmt"

	"github.com/dreamsxin/memrecycle/monitor"
	"github.com/dreamsxin/memrecycle/types"
)

// Capture reads what is needed to start the process again. It must run before Terminate.
func (pm *ProcessManager) Capture(ctx context.Context, h *types.ProcessHandle) (types.LaunchSpec, error) {
	var spec types.LaunchSpec
	if h == nil || h.Proc == nil || !monitor.Alive(ctx, h) {
		return spec, fmt.Errorf("%w: %w", ErrCaptureFailed, monitor.ErrProcessNotRunning)
	}

	exe, err := h.Proc.ExeWithContext(ctx)
	if err != nil {
		return spec, fmt.Errorf("%w: pid %d: %w", ErrCaptureFailed, h.PID, err)
	}
	if exe == "" {
		return spec, fmt.Errorf("%w: pid %d has no executable path", ErrCaptureFailed, h.PID)
	}
	spec.Path = exe

	if !pm.opts.RestoreArgs {
		return spec, nil
	}

	// 参数和工作目录是尽力而为，读取失败时只用可执行文件路径重启
	if argv, err := h.Proc.CmdlineSliceWithContext(ctx); err == nil && len(argv) > 1 {
		spec.Args = append([]string(nil), argv[1:]...)
	} else if err != nil {
		pm.logger.Debug().Err(err).Int32("pid", h.PID).Msg("Could not read command line")
	}
	if cwd, err := h.Proc.CwdWithContext(ctx); err == nil {
		spec.Dir = cwd
	} else {
		pm.logger.Debug().Err(err).Int32("pid", h.PID).Msg("Could not read working directory")
	}

	return spec, nil
}
