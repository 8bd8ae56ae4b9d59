package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/agent"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/session"
)

func newParent(t *testing.T, tr *provider.ScriptTransport, maxDepth int) *agent.Instance {
	t.Helper()
	return &agent.Instance{
		Name:         "main",
		SystemPrompt: "You are the main agent.",
		Transport:    tr,
		Dispatcher:   actions.NewDispatcher(nil, nil, false),
		Bus:          bus.NewEventBus(),
		Session:      session.NewState("main"),
		AutoComplete: true,
		PlanMaxDepth: maxDepth,
		Retry:        provider.RetryPolicy{MaxRetries: 0, BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 2},
	}
}

func fastPlanner() *TaskPlanner {
	p := New()
	p.Retry = provider.RetryPolicy{MaxRetries: 0, BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 2}
	return p
}

func planReply(items ...string) string {
	return protocol.OpenTag(PlanBlock) + "\n- " + strings.Join(items, "\n- ") + "\n" + protocol.CloseTag(PlanBlock)
}

func TestPlanDepthBound(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake", planReply("should never be requested"))
	parent := newParent(t, tr, 2)
	parent.PlanDepth = 2

	p := fastPlanner()
	out, err := p.Plan(context.Background(), parent, "task")
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("expected fall-through, got %q", out)
	}
	if len(tr.Calls) != 0 {
		t.Error("at the depth bound no plan request may be made")
	}
	if len(p.Children()) != 0 {
		t.Error("at the depth bound no child may be constructed")
	}
}

func TestPlanDeclined(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake", "<DONT_NEED/>")
	parent := newParent(t, tr, 1)

	p := fastPlanner()
	out, err := p.Plan(context.Background(), parent, "task")
	if err != nil {
		t.Fatal(err)
	}
	if out != "" || len(p.Children()) != 0 {
		t.Errorf("declined plan must fall through, out=%q children=%v", out, p.Children())
	}
}

func TestPlanUnparseableFallsThrough(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake",
		protocol.OpenTag(PlanBlock)+"\n{not: [valid\n"+protocol.CloseTag(PlanBlock))
	parent := newParent(t, tr, 1)

	p := fastPlanner()
	out, err := p.Plan(context.Background(), parent, "task")
	if err != nil {
		t.Fatal(err)
	}
	if out != "" || len(p.Children()) != 0 {
		t.Errorf("unparseable plan must fall through, out=%q", out)
	}
}

func TestPlanRunsChildrenSequentially(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake",
		planReply("collect data", "write report"),
		"data collected "+protocol.DefaultCompletionMarker,
		"report written "+protocol.DefaultCompletionMarker,
		"both sub-tasks finished")
	parent := newParent(t, tr, 1)

	p := fastPlanner()
	out, err := p.Plan(context.Background(), parent, "produce the report")
	if err != nil {
		t.Fatal(err)
	}

	children := p.Children()
	if len(children) != 2 || children[0] != "main.sub1" || children[1] != "main.sub2" {
		t.Errorf("children = %v", children)
	}

	for _, want := range []string{
		protocol.OpenTag(PlanBlock),
		protocol.OpenTag(ResultsBlock),
		protocol.OpenTag(SummaryBlock),
		"1. collect data: data collected",
		"2. write report: report written",
		"both sub-tasks finished",
		"produce the report",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("merged prompt missing %q:\n%s", want, out)
		}
	}

	// The second child must see the first child's result.
	secondInput := tr.Calls[2].History[len(tr.Calls[2].History)-1].Content
	if !strings.Contains(secondInput, "data collected") {
		t.Errorf("previous results not forwarded: %q", secondInput)
	}
}

func TestPlanRecordsFailureAndContinues(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake",
		planReply("doomed step", "good step"),
		"no completion marker here",
		"good step done "+protocol.DefaultCompletionMarker,
		"partial success")
	parent := newParent(t, tr, 1)
	parent.Loop.MaxTurns = 1

	p := fastPlanner()
	out, err := p.Plan(context.Background(), parent, "task")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "FAILED") {
		t.Errorf("failure not recorded:\n%s", out)
	}
	if !strings.Contains(out, "2. good step: good step done") {
		t.Errorf("second sub-task did not run:\n%s", out)
	}
}

func TestPlanSummaryPlaceholder(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake",
		planReply("only step"),
		"step done "+protocol.DefaultCompletionMarker)
	// Synthesis reply exhausted, transport returns "".
	parent := newParent(t, tr, 1)

	p := fastPlanner()
	out, err := p.Plan(context.Background(), parent, "task")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, summaryPlaceholder) {
		t.Errorf("placeholder missing:\n%s", out)
	}
}
