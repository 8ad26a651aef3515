package monitor

import (
	"context"
	"errors"

	"github.com/dreamsxin/memrecycle/types"
)

var (
	// ErrProcessNotRunning 目标进程没有运行
	ErrProcessNotRunning = errors.New("process not running")

	// ErrSampleUnavailable 采样时进程已退出或句柄失效
	ErrSampleUnavailable = errors.New("memory sample unavailable")
)

// Locator 按名称定位进程
type Locator interface {
	// 返回第一个匹配的进程实例，没有匹配时返回 ErrProcessNotRunning
	Locate(ctx context.Context, name string) (*types.ProcessHandle, error)
}

// Sampler 读取进程私有工作集
type Sampler interface {
	// 返回私有工作集（MB），句柄失效时返回 ErrSampleUnavailable
	Sample(ctx context.Context, handle *types.ProcessHandle) (int64, error)
}

// Monitor 监控器接口
type Monitor interface {
	Locator
	Sampler
}

// IsNotRunning 判断错误是否表示“进程不在运行”
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrProcessNotRunning) || errors.Is(err, ErrSampleUnavailable)
}
