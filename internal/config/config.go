// Package config holds the settings file and the default-path policy. The
// engine packages never consult the environment themselves; every path
// they need is resolved here and injected at construction.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultRefreshIntervalSeconds = 900
	defaultRetentionDays          = 90
)

type Config struct {
	StorageRoot            string `json:"storage_root"`
	DatabasePath           string `json:"database_path"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	RetentionDays          int    `json:"retention_days"`
}

func DefaultConfig() Config {
	return Config{
		StorageRoot:            DefaultStorageRoot(),
		DatabasePath:           DefaultDatabasePath(),
		RefreshIntervalSeconds: defaultRefreshIntervalSeconds,
		RetentionDays:          defaultRetentionDays,
	}
}

// DefaultStorageRoot is where OpenCode keeps its message part files.
func DefaultStorageRoot() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "opencode", "storage", "part")
}

// DefaultDatabasePath puts the history database under the XDG state dir.
func DefaultDatabasePath() string {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, _ := os.UserHomeDir()
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "opencodeusage", "history.db")
}

func ConfigDir() string {
	if cfg := os.Getenv("XDG_CONFIG_HOME"); cfg != "" {
		return filepath.Join(cfg, "opencodeusage")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "opencodeusage")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the settings file at path. A missing file yields the
// defaults; a present but unparseable file is an error.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading settings: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: parsing settings %s: %w", path, err)
	}

	if cfg.StorageRoot == "" {
		cfg.StorageRoot = DefaultStorageRoot()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultDatabasePath()
	}
	if cfg.RefreshIntervalSeconds <= 0 || cfg.RefreshIntervalSeconds > 3600 {
		cfg.RefreshIntervalSeconds = defaultRefreshIntervalSeconds
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}

	return cfg, nil
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing settings: %w", err)
	}
	return nil
}
