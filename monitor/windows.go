//go:build windows

package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// matchName Windows进程名不区分大小写，忽略 .exe 后缀
func matchName(actual, want string) bool {
	return normalizeName(actual) == normalizeName(want)
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}

// privateWorkingSet 获取Windows进程的“Working Set - Private”（字节）
// 第二个返回值为 false 表示退回到了完整工作集
func privateWorkingSet(ctx context.Context, proc *process.Process) (uint64, bool, error) {
	if bytes, err := queryWorkingSetPrivate(ctx, proc.Pid); err == nil {
		return bytes, true, nil
	}

	// wmic 不可用时退回到工作集（较新的 Windows 11 默认不带 wmic）
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, false, err
	}
	return memInfo.RSS, false, nil
}

// queryWorkingSetPrivate 使用wmic读取性能计数器
func queryWorkingSetPrivate(ctx context.Context, pid int32) (uint64, error) {
	cmd := exec.CommandContext(ctx, "wmic", "path", "Win32_PerfFormattedData_PerfProc_Process",
		"where", fmt.Sprintf("IDProcess=%d", pid), "get", "WorkingSetPrivate", "/format:value")
	output, err := cmd.Output()
	if err != nil {
		return 0, err
	}

	lines := strings.Split(string(output), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "WorkingSetPrivate=") {
			memStr := strings.TrimPrefix(line, "WorkingSetPrivate=")
			return strconv.ParseUint(memStr, 10, 64)
		}
	}

	return 0, fmt.Errorf("WorkingSetPrivate not found for PID %d", pid)
}

// isZombie Windows上没有僵尸进程
func isZombie(context.Context, *process.Process) bool {
	return false
}
