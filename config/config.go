// Package config loads operator options and persists the recycle policy.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamsxin/memrecycle/types"
)

//go:embed sample_config.yaml
var sampleConfig string

// EnvConfigPath overrides the default config location
const EnvConfigPath = "MEMRECYCLE_CONFIG"

const appDirName = "memrecycle"

// Recycle controls how a process is terminated and relaunched
type Recycle struct {
	GraceTimeout time.Duration `yaml:"grace_timeout" validate:"gt=0"`
	KillTimeout  time.Duration `yaml:"kill_timeout" validate:"gt=0"`
	RestoreArgs  bool          `yaml:"restore_args"`
}

// Log configures the zerolog output
type Log struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=console json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gt=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// Runtime holds file locations used by the daemon
type Runtime struct {
	SocketPath   string `yaml:"socket_path" validate:"required"`
	LockPath     string `yaml:"lock_path" validate:"required"`
	SettingsPath string `yaml:"settings_path" validate:"required"`
}

// Notify configures ntfy push notifications
type Notify struct {
	NtfyTopic      string        `yaml:"ntfy_topic" validate:"omitempty,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// ChoiceLists holds operator-facing value lists
type ChoiceLists struct {
	Processes []string `yaml:"processes" validate:"dive,required"`
}

// Config is the operator configuration file
type Config struct {
	Policy  types.Policy `yaml:"policy"`
	Recycle Recycle      `yaml:"recycle"`
	Log     Log          `yaml:"log"`
	Runtime Runtime      `yaml:"runtime"`
	Notify  Notify       `yaml:"notify"`
	Choices ChoiceLists  `yaml:"choices"`
}

// ResolvePath picks the config path: flag, then environment, then the user config directory.
func ResolvePath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return expandHome(p)
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return expandHome(p)
	}
	return filepath.Join(baseDir(), "config.yaml")
}

// Load reads the config at path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteSample writes the embedded sample config, refusing to overwrite unless force is set
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// Marshal renders cfg as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) normalize() {
	c.Policy.ProcessName = strings.TrimSpace(c.Policy.ProcessName)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Log.File = expandHome(c.Log.File)
	c.Runtime.SocketPath = expandHome(c.Runtime.SocketPath)
	c.Runtime.LockPath = expandHome(c.Runtime.LockPath)
	c.Runtime.SettingsPath = expandHome(c.Runtime.SettingsPath)
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDirName)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
