package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/session"
)

type echoAction struct {
	tag      string
	terminal bool
	applied  int
}

func (e *echoAction) Name() string   { return "echo" }
func (e *echoAction) Prompt() string { return "Wrap text in <ECHO> tags to echo it." }

func (e *echoAction) Matches(reply string) bool {
	return protocol.HasBlock(reply, e.tag)
}

func (e *echoAction) Apply(ctx context.Context, reply string) (actions.Result, error) {
	e.applied++
	blocks, _ := protocol.ExtractBlocks(reply, e.tag)
	text := ""
	if len(blocks) > 0 {
		text = "echo: " + blocks[0]
	}
	return actions.Result{Terminal: e.terminal, Text: text}, nil
}

func newTestInstance(t *testing.T, replies ...string) (*Instance, *provider.ScriptTransport) {
	t.Helper()
	tr := provider.NewScriptTransport("cli", "fake", replies...)
	inst := &Instance{
		Name:         "main",
		SystemPrompt: "You are a careful assistant.",
		Transport:    tr,
		Dispatcher:   actions.NewDispatcher(nil, nil, false),
		Bus:          bus.NewEventBus(),
		Session:      session.NewState("main"),
		AutoComplete: true,
		Loop:         LoopConfig{MaxTurns: 10},
		Retry:        provider.RetryPolicy{MaxRetries: 0, BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 2},
	}
	return inst, tr
}

func TestRunCompletesOnMarker(t *testing.T) {
	inst, tr := newTestInstance(t, "all done "+protocol.DefaultCompletionMarker)

	var events []string
	for _, name := range []string{bus.TaskStarted, bus.BeforeModelCall, bus.AfterModelCall, bus.TaskCompleted} {
		n := name
		inst.Bus.Subscribe(n, func(bus.Event) { events = append(events, n) })
	}

	out, err := inst.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "all done" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(tr.Calls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(tr.Calls))
	}
	want := []string{bus.TaskStarted, bus.BeforeModelCall, bus.AfterModelCall, bus.TaskCompleted}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v", events)
	}
}

func TestRunEmptyReplyKeepsPrompt(t *testing.T) {
	inst, tr := newTestInstance(t, "", "done "+protocol.DefaultCompletionMarker)

	out, err := inst.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "done" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(tr.Calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(tr.Calls))
	}
	// The no-op turn must re-ask with the original task.
	for _, call := range tr.Calls {
		input := call.History[len(call.History)-1].Content
		if !strings.Contains(input, "do the thing") {
			t.Errorf("prompt lost after empty reply: %q", input)
		}
	}
}

func TestRunTerminalAction(t *testing.T) {
	inst, tr := newTestInstance(t, "<ECHO>\nfinal answer\n</ECHO>")
	act := &echoAction{tag: "ECHO", terminal: true}
	inst.Dispatcher = actions.NewDispatcher([]actions.Action{act}, nil, false)

	out, err := inst.Run(context.Background(), "say it")
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "echo: final answer" {
		t.Errorf("Text = %q", out.Text)
	}
	if act.applied != 1 {
		t.Errorf("applied = %d", act.applied)
	}
	if len(tr.Calls) != 1 {
		t.Errorf("calls = %d", len(tr.Calls))
	}
}

func TestRunNonTerminalActionFeedsNextTurn(t *testing.T) {
	inst, tr := newTestInstance(t,
		"<ECHO>\nobservation\n</ECHO>",
		"done "+protocol.DefaultCompletionMarker)
	inst.Dispatcher = actions.NewDispatcher([]actions.Action{&echoAction{tag: "ECHO"}}, nil, false)

	if _, err := inst.Run(context.Background(), "look around"); err != nil {
		t.Fatal(err)
	}
	if len(tr.Calls) != 2 {
		t.Fatalf("calls = %d", len(tr.Calls))
	}
	second := tr.Calls[1].History[len(tr.Calls[1].History)-1].Content
	if !strings.Contains(second, "echo: observation") {
		t.Errorf("action result not fed forward: %q", second)
	}
}

func TestRunTransportExhaustionIsFatal(t *testing.T) {
	inst, _ := newTestInstance(t)
	inst.Transport = &failingTransport{}

	_, err := inst.Run(context.Background(), "task")
	if err == nil || !strings.Contains(err.Error(), "transport exhausted") {
		t.Errorf("err = %v", err)
	}
}

type failingTransport struct{}

func (f *failingTransport) Chat(ctx context.Context, systemPrompt string, history []provider.Message) (string, error) {
	return "", &provider.TransportError{Op: "chat", Retryable: false, Err: context.DeadlineExceeded}
}
func (f *failingTransport) SupportsFileOffload() bool { return false }
func (f *failingTransport) UploadFile(string) bool    { return false }
func (f *failingTransport) PlatformName() string      { return "test" }
func (f *failingTransport) ModelName() string         { return "fake" }

func TestRunCompactionThreshold(t *testing.T) {
	inst, _ := newTestInstance(t,
		"thinking",
		"still thinking",
		"done "+protocol.DefaultCompletionMarker)
	inst.Loop.CompactEvery = 1
	inst.Compactor = session.NewCompactor(t.TempDir())
	inst.Compactor.Retry = inst.Retry

	var cleared int
	inst.Bus.Subscribe(bus.AfterHistoryClear, func(bus.Event) { cleared++ })

	if _, err := inst.Run(context.Background(), "long task"); err != nil {
		t.Fatal(err)
	}
	if cleared == 0 {
		t.Error("compaction never ran")
	}
	if inst.Session.TurnCount != 1 {
		// One turn recorded since the last compaction.
		t.Errorf("TurnCount = %d", inst.Session.TurnCount)
	}
}

func TestRunInterruptTerminates(t *testing.T) {
	inst, tr := newTestInstance(t, "reply one", "reply two")
	inst.Interrupt = func() *Interrupt {
		return &Interrupt{Terminate: true, Input: "stopped by user"}
	}

	out, err := inst.Run(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "stopped by user" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(tr.Calls) != 0 {
		t.Errorf("interrupt before thinking must not call the model, got %d calls", len(tr.Calls))
	}
}

func TestRunTurnBudget(t *testing.T) {
	inst, _ := newTestInstance(t, "a", "b", "c")
	inst.Loop.MaxTurns = 3

	_, err := inst.Run(context.Background(), "task")
	if err == nil || !strings.Contains(err.Error(), "turn budget") {
		t.Errorf("err = %v", err)
	}
}

func TestRunFinalSummaryTurn(t *testing.T) {
	inst, tr := newTestInstance(t,
		"done "+protocol.DefaultCompletionMarker,
		"summary of everything")
	inst.Loop.NeedSummary = true

	out, err := inst.Run(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "summary of everything" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(tr.Calls) != 2 {
		t.Errorf("calls = %d", len(tr.Calls))
	}
}

func TestDefaultAddonPromptMentionsMarker(t *testing.T) {
	inst, _ := newTestInstance(t)
	addon := inst.defaultAddonPrompt()
	if !strings.Contains(addon, protocol.DefaultCompletionMarker) {
		t.Errorf("addon = %q", addon)
	}

	inst.AutoComplete = false
	if strings.Contains(inst.defaultAddonPrompt(), protocol.DefaultCompletionMarker) {
		t.Error("marker instruction must be gated on autoComplete")
	}
}
