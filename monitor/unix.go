//go:build !windows

package monitor

import (
	"context"
	"slices"

	"github.com/shirou/gopsutil/v4/process"
)

// matchName Unix进程名区分大小写
func matchName(actual, want string) bool {
	return actual == want
}

// privateWorkingSet 获取Unix进程私有内存（字节）
// 第二个返回值为 false 表示退回到了 RSS
func privateWorkingSet(ctx context.Context, proc *process.Process) (uint64, bool, error) {
	// 分组读取 smaps_rollup，单位为 kB
	maps, err := proc.MemoryMapsWithContext(ctx, true)
	if err == nil && maps != nil && len(*maps) > 0 {
		var kb uint64
		for _, m := range *maps {
			kb += m.PrivateClean + m.PrivateDirty
		}
		return kb * 1024, true, nil
	}

	// 没有 smaps（权限不足或平台不支持）时退回到 RSS
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, false, err
	}
	return memInfo.RSS, false, nil
}

// isZombie 已退出但尚未被回收的进程视为不在运行
func isZombie(ctx context.Context, proc *process.Process) bool {
	status, err := proc.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}
