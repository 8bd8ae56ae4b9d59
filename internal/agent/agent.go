// Package agent contains the run loop that drives a model through
// think, act, observe cycles until the task is judged complete.
package agent

import (
	"context"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/session"
	"github.com/HelmsmanAI/helmsman/internal/trace"
)

// LoopConfig holds the per-run thresholds of the loop.
type LoopConfig struct {
	// MaxTurns bounds the loop; <= 0 means the package default.
	MaxTurns int
	// ReminderEvery appends the action-usage reminder to the addon
	// prompt every N turns. 0 disables reminders.
	ReminderEvery int
	// CompactEvery triggers history compaction once TurnCount reaches N.
	// 0 disables compaction.
	CompactEvery int
	// CompletionMarker overrides the default completion token.
	CompletionMarker string
	// NeedSummary requests one final summarization turn on completion.
	NeedSummary bool
	// SummaryPrompt is the prompt for that final turn.
	SummaryPrompt string
}

// DefaultMaxTurns caps a run when no explicit bound is configured.
const DefaultMaxTurns = 100

// Outcome is the final result of a run: either plain text, or a hand-off
// directive for the router to deliver.
type Outcome struct {
	Text      string
	Directive *actions.Directive
}

// Interrupt is an externally signalled break in the loop. Terminate ends
// the run with Input as the final text; otherwise the current turn is
// discarded and Input, when non-empty, becomes the next prompt.
type Interrupt struct {
	Terminate bool
	Input     string
}

// InterruptFunc is polled at state-machine boundaries. A nil return means
// no interrupt is pending. Never called from inside a blocking call.
type InterruptFunc func() *Interrupt

// Planner decomposes a task into sub-agent runs before the main loop
// starts. It returns the rewritten prompt for the parent, or "" to fall
// through to direct execution.
type Planner interface {
	Plan(ctx context.Context, inst *Instance, task string) (string, error)
}

// Instance is one configured agent: identity, system prompt, action set,
// and the session it exclusively owns.
type Instance struct {
	Name         string
	SystemPrompt string

	Transport  provider.Transport
	Dispatcher *actions.Dispatcher
	Bus        *bus.EventBus
	Session    *session.State
	Compactor  *session.Compactor

	AutoComplete   bool
	NonInteractive bool
	PlanDepth      int
	PlanMaxDepth   int

	Planner   Planner
	Interrupt InterruptFunc

	// Tracer records task and span rows best-effort; nil disables tracing.
	Tracer *trace.Store

	Loop  LoopConfig
	Retry provider.RetryPolicy
}

// Marker returns the effective completion marker.
func (i *Instance) Marker() string {
	if i.Loop.CompletionMarker != "" {
		return i.Loop.CompletionMarker
	}
	return protocol.DefaultCompletionMarker
}

func (i *Instance) maxTurns() int {
	if i.Loop.MaxTurns > 0 {
		return i.Loop.MaxTurns
	}
	return DefaultMaxTurns
}

func (i *Instance) emit(name string, payload map[string]any) {
	if i.Bus == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["agent"] = i.Name
	i.Bus.Emit(name, payload)
}
