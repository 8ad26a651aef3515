package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/dreamsxin/memrecycle/types"
	"github.com/dreamsxin/memrecycle/util"
)

// ProcessMonitor 基于 gopsutil 的进程定位与内存采样
type ProcessMonitor struct {
	logger       zerolog.Logger
	fallbackOnce sync.Once
}

// NewProcessMonitor 创建新的进程监控器
func NewProcessMonitor(logger zerolog.Logger) *ProcessMonitor {
	return &ProcessMonitor{
		logger: logger.With().Str("component", "ProcessMonitor").Logger(),
	}
}

// Locate 按进程名获取第一个运行中的实例
func (m *ProcessMonitor) Locate(ctx context.Context, name string) (*types.ProcessHandle, error) {
	handles, err := m.LocateAll(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotRunning, name)
	}

	if len(handles) > 1 {
		m.logger.Debug().
			Str("process", name).
			Int("instances", len(handles)).
			Int32("selected_pid", handles[0].PID).
			Msg("Multiple instances found, using the lowest PID")
	}

	return handles[0], nil
}

// LocateAll 按进程名获取所有实例，按PID排序
func (m *ProcessMonitor) LocateAll(ctx context.Context, name string) ([]*types.ProcessHandle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	// 保证“第一个”是确定的
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].Pid < procs[j].Pid
	})

	var handles []*types.ProcessHandle
	for _, proc := range procs {
		procName, err := proc.NameWithContext(ctx)
		if err != nil {
			continue // 进程可能已经退出或无权限
		}
		if !matchName(procName, name) {
			continue
		}

		createTime, err := proc.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}

		handles = append(handles, &types.ProcessHandle{
			PID:        proc.Pid,
			Name:       procName,
			CreateTime: createTime,
			Proc:       proc,
		})
	}

	return handles, nil
}

// Sample 获取进程的私有工作集（MB）
func (m *ProcessMonitor) Sample(ctx context.Context, handle *types.ProcessHandle) (int64, error) {
	if handle == nil || handle.Proc == nil {
		return 0, ErrSampleUnavailable
	}

	if !Alive(ctx, handle) {
		return 0, fmt.Errorf("%w: pid %d exited", ErrSampleUnavailable, handle.PID)
	}

	bytes, private, err := privateWorkingSet(ctx, handle.Proc)
	if err != nil {
		return 0, fmt.Errorf("%w: pid %d: %w", ErrSampleUnavailable, handle.PID, err)
	}
	if !private {
		m.noteFallback(handle.PID)
	}

	return util.BytesToMB(bytes), nil
}

// noteFallback 私有内存不可读时只警告一次，之后的采样都是完整工作集
func (m *ProcessMonitor) noteFallback(pid int32) {
	m.fallbackOnce.Do(func() {
		m.logger.Warn().
			Int32("pid", pid).
			Msg("Private working set unavailable, sampling resident memory instead; recycles may trigger early")
	})
}

// Alive 检查句柄对应的实例是否仍在运行（PID复用时创建时间不同）
func Alive(ctx context.Context, handle *types.ProcessHandle) bool {
	if handle == nil || handle.Proc == nil {
		return false
	}

	running, err := handle.Proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}

	if handle.CreateTime != 0 {
		created, err := handle.Proc.CreateTimeWithContext(ctx)
		if err != nil || created != handle.CreateTime {
			return false
		}
	}

	return !isZombie(ctx, handle.Proc)
}
