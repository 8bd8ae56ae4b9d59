package router

import (
	"context"
	"strings"
	"testing"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
)

func twoAgentConfigs() []AgentConfig {
	return []AgentConfig{
		{Name: "A", SystemPrompt: "You are A.", AutoComplete: true},
		{Name: "B", SystemPrompt: "You are B.", AutoComplete: true},
	}
}

func fastRetry() provider.RetryPolicy {
	return provider.RetryPolicy{MaxRetries: 0, BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 2}
}

func handoffReply(to, content string) string {
	return protocol.OpenTag(HandoffBlock) + "\nto: " + to + "\ncontent: " + content + "\n" + protocol.CloseTag(HandoffBlock)
}

func TestRouteRejectsUnknownTarget(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake")
	r, err := New(tr, bus.NewEventBus(), "A", twoAgentConfigs())
	if err != nil {
		t.Fatal(err)
	}

	err = r.Route(&actions.Directive{To: "C", Content: "x"})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(err.Error(), "A") || !strings.Contains(err.Error(), "B") {
		t.Errorf("error must list valid targets: %v", err)
	}
	if r.HasInstance("A") || r.HasInstance("B") {
		t.Error("rejection must not materialize instances")
	}
}

func TestNewRejectsUnknownMain(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake")
	if _, err := New(tr, bus.NewEventBus(), "missing", twoAgentConfigs()); err == nil {
		t.Error("expected error for unknown main agent")
	}
}

func TestRunHandoffScenario(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake",
		handoffReply("B", "hello"),
		"A did some preparation work",
		"done "+protocol.DefaultCompletionMarker)
	r, err := New(tr, bus.NewEventBus(), "A", twoAgentConfigs())
	if err != nil {
		t.Fatal(err)
	}
	r.Retry = fastRetry()
	r.CompactDir = t.TempDir()

	out, err := r.Run(context.Background(), "start the task")
	if err != nil {
		t.Fatal(err)
	}
	if out != "done" {
		t.Errorf("out = %q", out)
	}
	if !r.HasInstance("B") {
		t.Error("target instance not materialized")
	}

	// Call 3 is B's turn; its input carries the forwarded envelope.
	forwarded := tr.Calls[2].History[len(tr.Calls[2].History)-1].Content
	for _, want := range []string{"from: A", "content: hello", "A did some preparation work"} {
		if !strings.Contains(forwarded, want) {
			t.Errorf("forwarded input missing %q:\n%s", want, forwarded)
		}
	}
}

func TestRunMalformedHandoffGetsGuidance(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake",
		protocol.OpenTag(HandoffBlock)+"\nto: B\n"+protocol.CloseTag(HandoffBlock),
		handoffReply("B", "hello"),
		"done "+protocol.DefaultCompletionMarker)
	r, err := New(tr, bus.NewEventBus(), "A", twoAgentConfigs())
	if err != nil {
		t.Fatal(err)
	}
	r.Retry = fastRetry()
	r.HandoffSummary = false
	r.CompactDir = t.TempDir()

	out, err := r.Run(context.Background(), "start")
	if err != nil {
		t.Fatal(err)
	}
	if out != "done" {
		t.Errorf("out = %q", out)
	}
	// A's second turn must carry the missing-field guidance.
	second := tr.Calls[1].History[len(tr.Calls[1].History)-1].Content
	if !strings.Contains(second, "content") {
		t.Errorf("guidance not fed back: %q", second)
	}
}

func TestRunClearAfterSend(t *testing.T) {
	configs := twoAgentConfigs()
	configs[0].ClearAfterSend = true

	tr := provider.NewScriptTransport("cli", "fake",
		handoffReply("B", "hello"),
		"summary of A's history",
		"done "+protocol.DefaultCompletionMarker)
	r, err := New(tr, bus.NewEventBus(), "A", configs)
	if err != nil {
		t.Fatal(err)
	}
	r.Retry = fastRetry()
	r.HandoffSummary = false
	r.CompactDir = t.TempDir()

	if _, err := r.Run(context.Background(), "start"); err != nil {
		t.Fatal(err)
	}
	a, err := r.instance("A")
	if err != nil {
		t.Fatal(err)
	}
	if a.Session.Len() != 0 {
		t.Errorf("sender history not cleared, len=%d", a.Session.Len())
	}
}

type emptyTerminalAction struct{}

func (emptyTerminalAction) Name() string        { return "vanish" }
func (emptyTerminalAction) Prompt() string      { return "" }
func (emptyTerminalAction) Matches(r string) bool { return strings.Contains(r, "<VANISH/>") }
func (emptyTerminalAction) Apply(context.Context, string) (actions.Result, error) {
	return actions.Result{Terminal: true}, nil
}

func TestRunEmptyTerminalIsFatal(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake", "<VANISH/>")
	r, err := New(tr, bus.NewEventBus(), "A", twoAgentConfigs())
	if err != nil {
		t.Fatal(err)
	}
	r.Retry = fastRetry()
	r.RegisterAction(emptyTerminalAction{})

	_, err = r.Run(context.Background(), "start")
	if err == nil || !strings.Contains(err.Error(), "neither text nor a hand-off") {
		t.Errorf("err = %v", err)
	}
}

func TestHandoffActionSelfTarget(t *testing.T) {
	tr := provider.NewScriptTransport("cli", "fake")
	r, err := New(tr, bus.NewEventBus(), "A", twoAgentConfigs())
	if err != nil {
		t.Fatal(err)
	}
	h := &HandoffAction{Router: r, Self: "A"}

	res, err := h.Apply(context.Background(), handoffReply("A", "hi"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Terminal || res.Directive != nil {
		t.Errorf("self hand-off must be rejected: %+v", res)
	}
	if !strings.Contains(res.Text, "yourself") {
		t.Errorf("guidance = %q", res.Text)
	}
}
