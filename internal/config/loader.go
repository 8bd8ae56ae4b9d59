package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name under $HOME.
	ConfigDir = ".helmsman"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. HELMSMAN_CONFIG
// overrides it; HELMSMAN_HOME relocates the default directory.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("HELMSMAN_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("HELMSMAN_HOME")); h != "" {
		return expandHome(h)
	}
	return os.UserHomeDir()
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// Load builds the configuration. Priority: environment > file > defaults.
// A missing file is not an error; a malformed one is.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	if err := LoadFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	expandPaths(cfg)
	return cfg, nil
}

// LoadFile merges the JSON file at path into cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	envconfig.Process("HELMSMAN_PATHS", &cfg.Paths)
	envconfig.Process("HELMSMAN_MODEL", &cfg.Model)
	envconfig.Process("HELMSMAN_LOOP", &cfg.Loop)
	envconfig.Process("HELMSMAN_RETRY", &cfg.Retry)
	envconfig.Process("HELMSMAN_ROUTER", &cfg.Router)
	envconfig.Process("HELMSMAN_PLANNER", &cfg.Planner)
	envconfig.Process("HELMSMAN_RELAY", &cfg.Relay)
}

func expandPaths(cfg *Config) {
	for _, p := range []*string{&cfg.Paths.SessionsDir, &cfg.Paths.OffloadDir, &cfg.Paths.TraceDB} {
		if expanded, err := expandHome(*p); err == nil {
			*p = expanded
		}
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
