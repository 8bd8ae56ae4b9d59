package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Loop.MaxTurns != 100 || cfg.Retry.MaxRetries != 3 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Router.Main != "main" || len(cfg.Router.Agents) != 1 {
		t.Errorf("router defaults = %+v", cfg.Router)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"model": {"platform": "openai", "name": "gpt-test"},
		"loop": {"maxTurns": 7},
		"router": {"main": "planner", "agents": [
			{"name": "planner", "systemPrompt": "Plan.", "autoComplete": true},
			{"name": "coder", "systemPrompt": "Code.", "clearAfterSend": true}
		]}
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Name != "gpt-test" || cfg.Loop.MaxTurns != 7 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if len(cfg.Router.Agents) != 2 || cfg.Router.Agents[1].Name != "coder" {
		t.Errorf("agents = %+v", cfg.Router.Agents)
	}
	// Untouched sections keep their defaults.
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("retry defaults lost: %+v", cfg.Retry)
	}
}

func TestLoadFileRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadFile(path, DefaultConfig()); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HELMSMAN_LOOP_MAX_TURNS", "13")
	t.Setenv("HELMSMAN_MODEL_NAME", "env-model")
	t.Setenv("HELMSMAN_RELAY_BROKERS", "k1:9092,k2:9092")

	cfg := DefaultConfig()
	applyEnv(cfg)

	if cfg.Loop.MaxTurns != 13 {
		t.Errorf("MaxTurns = %d", cfg.Loop.MaxTurns)
	}
	if cfg.Model.Name != "env-model" {
		t.Errorf("Model.Name = %q", cfg.Model.Name)
	}
	if len(cfg.Relay.Brokers) != 2 || cfg.Relay.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Relay.Brokers)
	}
}

func TestConfigPathOverride(t *testing.T) {
	t.Setenv("HELMSMAN_CONFIG", "/tmp/custom.json")
	path, err := ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != "/tmp/custom.json" {
		t.Errorf("path = %q", path)
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cfg := DefaultConfig()
	expandPaths(cfg)
	if cfg.Paths.TraceDB != filepath.Join(home, ConfigDir, "trace.db") {
		t.Errorf("TraceDB = %q", cfg.Paths.TraceDB)
	}
}
