package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/HelmsmanAI/helmsman/internal/config"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.SessionsDir = filepath.Join(dir, "sessions")
	cfg.Paths.OffloadDir = filepath.Join(dir, "offload")
	cfg.Paths.TraceDB = filepath.Join(dir, "trace.db")
	cfg.Retry.MaxRetries = 0
	cfg.Retry.BaseDelaySecs = 0.001
	cfg.Retry.MaxDelaySecs = 0.001
	return cfg
}

func TestBuildRouterRunsScriptedTask(t *testing.T) {
	cfg := testConfig(t)
	transport := provider.NewScriptTransport(cfg.Model.Platform, cfg.Model.Name,
		"all set "+protocol.DefaultCompletionMarker)

	r, cleanup, err := buildRouter(cfg, transport)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	out, err := r.Run(context.Background(), "small task")
	if err != nil {
		t.Fatal(err)
	}
	if out != "all set" {
		t.Errorf("out = %q", out)
	}

	// The run must leave a trace behind.
	tasks, err := r.Tracer.RecentTasks(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Status != "completed" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestBuildRouterRejectsBadMain(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.Main = "ghost"

	_, _, err := buildRouter(cfg, provider.NewScriptTransport("s", "m"))
	if err == nil {
		t.Error("expected error for unknown main agent")
	}
}

func TestBuildRouterWithPlanner(t *testing.T) {
	cfg := testConfig(t)
	cfg.Planner.Enabled = true
	cfg.Planner.MaxDepth = 1

	transport := provider.NewScriptTransport(cfg.Model.Platform, cfg.Model.Name,
		"<DONT_NEED/>",
		"done "+protocol.DefaultCompletionMarker)

	r, cleanup, err := buildRouter(cfg, transport)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	out, err := r.Run(context.Background(), "simple task")
	if err != nil {
		t.Fatal(err)
	}
	if out != "done" {
		t.Errorf("out = %q", out)
	}
}
