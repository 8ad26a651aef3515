package config

import (
	"path/filepath"
	"time"

	"github.com/dreamsxin/memrecycle/types"
)

const (
	defaultProcessName       = "MetroTwit"
	defaultCheckIntervalMs   = 120000
	defaultMemoryThresholdMB = 500
	defaultGraceTimeout      = 30 * time.Second
	defaultKillTimeout       = 5 * time.Second
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
	defaultLogMaxSizeMB      = 10
	defaultLogMaxBackups     = 3
	defaultNotifyTimeout     = 10 * time.Second
)

// DefaultPolicy returns the policy used when nothing is persisted
func DefaultPolicy() types.Policy {
	return types.Policy{
		ProcessName:       defaultProcessName,
		CheckIntervalMs:   defaultCheckIntervalMs,
		MemoryThresholdMB: defaultMemoryThresholdMB,
	}
}

// Default returns a Config populated with defaults
func Default() Config {
	dir := baseDir()
	return Config{
		Policy: DefaultPolicy(),
		Recycle: Recycle{
			GraceTimeout: defaultGraceTimeout,
			KillTimeout:  defaultKillTimeout,
		},
		Log: Log{
			Level:      defaultLogLevel,
			Format:     defaultLogFormat,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
		Runtime: Runtime{
			SocketPath:   filepath.Join(dir, "memrecycle.sock"),
			LockPath:     filepath.Join(dir, "memrecycle.lock"),
			SettingsPath: filepath.Join(dir, "settings.yaml"),
		},
		Notify: Notify{
			RequestTimeout: defaultNotifyTimeout,
		},
		Choices: ChoiceLists{
			Processes: []string{"MetroTwit", "MetroTwitLoop"},
		},
	}
}
