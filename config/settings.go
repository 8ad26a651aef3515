package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dreamsxin/memrecycle/types"
)

// SettingsStore persists the recycle policy as a small YAML document
type SettingsStore struct {
	path     string
	defaults types.Policy
	mu       sync.Mutex
}

// NewSettingsStore creates a store at path. defaults are returned by Load when nothing is saved yet.
func NewSettingsStore(path string, defaults types.Policy) *SettingsStore {
	return &SettingsStore{path: path, defaults: defaults}
}

// Path returns the settings file location
func (s *SettingsStore) Path() string {
	return s.path
}

// Load reads the persisted policy. Fields missing from the file keep their defaults.
func (s *SettingsStore) Load() (types.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.defaults
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return p, fmt.Errorf("read settings %s: %w", s.path, err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return s.defaults, fmt.Errorf("parse settings %s: %w", s.path, err)
	}

	if err := validate.Struct(p); err != nil {
		return s.defaults, fmt.Errorf("settings %s: %w", s.path, err)
	}
	return p, nil
}

// Save writes p to a temp file in the same directory and renames it into place
func (s *SettingsStore) Save(p types.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace settings %s: %w", s.path, err)
	}
	return nil
}
