package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamsxin/memrecycle/monitor"
	"github.com/dreamsxin/memrecycle/types"
)

var (
	// ErrTerminationTimeout is returned when a process outlives both the graceful close and the forced kill
	ErrTerminationTimeout = errors.New("process did not exit in time")

	// ErrRelaunchFailed wraps the error from starting the new instance
	ErrRelaunchFailed = errors.New("relaunch failed")

	// ErrCaptureFailed is returned when the launch spec of a running instance cannot be read
	ErrCaptureFailed = errors.New("capture launch spec failed")
)

const defaultPollInterval = 250 * time.Millisecond

// Options configures how processes are terminated and relaunched
type Options struct {
	GraceTimeout time.Duration
	KillTimeout  time.Duration
	RestoreArgs  bool
	PollInterval time.Duration
}

// TerminateResult reports how a process was stopped
type TerminateResult struct {
	Graceful bool
	Forced   bool
}

// ProcessManager closes, kills and starts OS processes on behalf of the controller
type ProcessManager struct {
	opts   Options
	logger zerolog.Logger
}

// NewProcessManager creates a new ProcessManager instance
func NewProcessManager(opts Options, logger zerolog.Logger) *ProcessManager {
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = 30 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &ProcessManager{
		opts:   opts,
		logger: logger.With().Str("component", "ProcessManager").Logger(),
	}
}

// Terminate asks the process to close, waits up to GraceTimeout, then kills it and waits up to KillTimeout.
// A process that is already gone counts as terminated.
func (pm *ProcessManager) Terminate(ctx context.Context, h *types.ProcessHandle) (TerminateResult, error) {
	var res TerminateResult
	if h == nil || h.Proc == nil {
		return res, fmt.Errorf("terminate: %w", monitor.ErrProcessNotRunning)
	}

	log := pm.logger.With().Int32("pid", h.PID).Str("process", h.Name).Logger()

	if !monitor.Alive(ctx, h) {
		log.Debug().Msg("Process already exited")
		res.Graceful = true
		return res, nil
	}

	if err := requestClose(ctx, h); err != nil {
		log.Warn().Err(err).Msg("Graceful close request failed, killing")
	} else {
		exited, err := pm.waitExit(ctx, h, pm.opts.GraceTimeout)
		if err != nil {
			return res, err
		}
		if exited {
			log.Info().Msg("Process closed gracefully")
			res.Graceful = true
			return res, nil
		}
		log.Warn().
			Err(ErrTerminationTimeout).
			Dur("grace_timeout", pm.opts.GraceTimeout).
			Msg("Process ignored close request, killing")
	}

	res.Forced = true
	if err := h.Proc.KillWithContext(ctx); err != nil && monitor.Alive(ctx, h) {
		return res, fmt.Errorf("kill pid %d: %w", h.PID, err)
	}

	exited, err := pm.waitExit(ctx, h, pm.opts.KillTimeout)
	if err != nil {
		return res, err
	}
	if !exited {
		return res, fmt.Errorf("%w: pid %d survived kill", ErrTerminationTimeout, h.PID)
	}

	log.Info().Msg("Process killed")
	return res, nil
}

// Launch starts a new detached instance and returns its PID
func (pm *ProcessManager) Launch(spec types.LaunchSpec) (int, error) {
	if spec.Path == "" {
		return 0, fmt.Errorf("%w: empty executable path", ErrRelaunchFailed)
	}

	cmd := createCommand(spec)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrRelaunchFailed, spec.Path, err)
	}

	pid := cmd.Process.Pid
	// reap the child when it eventually exits
	go func() {
		_ = cmd.Wait()
		pm.logger.Debug().Int("pid", pid).Str("path", spec.Path).Msg("Relaunched process exited")
	}()

	pm.logger.Info().
		Int("pid", pid).
		Str("path", spec.Path).
		Strs("args", spec.Args).
		Msg("Process relaunched")
	return pid, nil
}

// waitExit polls until the handle's instance is gone, timeout elapses or ctx ends
func (pm *ProcessManager) waitExit(ctx context.Context, h *types.ProcessHandle, timeout time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pm.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !monitor.Alive(ctx, h) {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return !monitor.Alive(ctx, h), nil
		case <-ticker.C:
		}
	}
}
