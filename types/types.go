package types

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessHandle references one live instance of the target process.
// It is only valid for the cycle that resolved it.
type ProcessHandle struct {
	PID        int32
	Name       string
	CreateTime int64 // milliseconds since epoch, pins the instance identity
	Proc       *process.Process
}

// LaunchSpec describes how to start a new instance of a recycled process
type LaunchSpec struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
	Dir  string   `json:"dir,omitempty"`
}

// TriggerKind tells a cycle whether it was started by the timer or by the operator
type TriggerKind int

const (
	TriggerTimer TriggerKind = iota
	TriggerManual
)

// String returns the trigger as a string
func (k TriggerKind) String() string {
	switch k {
	case TriggerManual:
		return "manual"
	default:
		return "timer"
	}
}

// Force reports whether the trigger bypasses the memory threshold
func (k TriggerKind) Force() bool {
	return k == TriggerManual
}

// RecycleEvent records one terminate + relaunch attempt
type RecycleEvent struct {
	ID          string      `json:"id"`
	ProcessName string      `json:"process_name"`
	PID         int32       `json:"pid"`
	Trigger     TriggerKind `json:"trigger"`
	SampleMB    int64       `json:"sample_mb"`
	ThresholdMB int64       `json:"threshold_mb"`
	ExePath     string      `json:"exe_path"`
	NewPID      int         `json:"new_pid,omitempty"`
	Forced      bool        `json:"forced"`
	Err         string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Host        HostMemory  `json:"host"`
}

// Failed returns true if the recycle did not produce a new instance
func (e *RecycleEvent) Failed() bool {
	return e.Err != ""
}

// Duration returns how long the recycle took
func (e *RecycleEvent) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}
