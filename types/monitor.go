package types

import (
	"fmt"
	"math"
	"time"
)

// MaxCheckIntervalMs is the longest interval that still fits in a time.Duration
const MaxCheckIntervalMs = math.MaxInt64 / int64(time.Millisecond)

// Policy 回收策略配置
type Policy struct {
	ProcessName       string `json:"process_name" yaml:"process_name" validate:"required"`
	CheckIntervalMs   int64  `json:"check_interval_ms" yaml:"check_interval_ms" validate:"gt=0,lte=9223372036854"`
	MemoryThresholdMB int64  `json:"memory_threshold_mb" yaml:"memory_threshold_mb" validate:"gt=0"`
}

// CheckInterval 返回检查间隔
func (p Policy) CheckInterval() time.Duration {
	return time.Duration(p.CheckIntervalMs) * time.Millisecond
}

// MemorySample 最近一次内存采样
type MemorySample struct {
	ProcessName string    `json:"process_name"`
	ValueMB     int64     `json:"value_mb"`
	Running     bool      `json:"running"`
	SampledAt   time.Time `json:"sampled_at"`
}

// String 返回托盘菜单风格的显示文本
func (s MemorySample) String() string {
	return fmt.Sprintf("%s is currently using %d mb", s.ProcessName, s.ValueMB)
}

// CycleOutcome 单次检查周期的结果
type CycleOutcome int

const (
	OutcomeSkipped CycleOutcome = iota
	OutcomeNotRunning
	OutcomeBelowThreshold
	OutcomeRecycled
	OutcomeFailed
)

// String 返回结果名称
func (o CycleOutcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNotRunning:
		return "not_running"
	case OutcomeBelowThreshold:
		return "below_threshold"
	case OutcomeRecycled:
		return "recycled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CycleResult 检查周期的完整结果
type CycleResult struct {
	Outcome CycleOutcome  `json:"outcome"`
	Trigger TriggerKind   `json:"trigger"`
	Policy  Policy        `json:"policy"`
	Sample  MemorySample  `json:"sample"`
	Event   *RecycleEvent `json:"event,omitempty"`
}

// Display 供展示层读取的当前状态
type Display struct {
	ProcessName string        `json:"process_name"`
	SampleMB    int64         `json:"sample_mb"`
	Running     bool          `json:"running"`
	SampledAt   time.Time     `json:"sampled_at"`
	Policy      Policy        `json:"policy"`
	LastEvent   *RecycleEvent `json:"last_event,omitempty"`
	Busy        bool          `json:"busy"`
}
