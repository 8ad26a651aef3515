package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/dreamsxin/memrecycle/types"
	"github.com/dreamsxin/memrecycle/util"
)

// HostProbe 读取主机内存状况，附加到回收事件和状态输出中
type HostProbe struct{}

// NewHostProbe 创建主机探针
func NewHostProbe() *HostProbe {
	return &HostProbe{}
}

// Memory 获取主机内存使用情况
func (HostProbe) Memory(ctx context.Context) (types.HostMemory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.HostMemory{}, fmt.Errorf("read host memory: %w", err)
	}

	return types.HostMemory{
		TotalMB:     util.BytesToMB(vm.Total),
		UsedMB:      util.BytesToMB(vm.Used),
		UsedPercent: vm.UsedPercent,
	}, nil
}
