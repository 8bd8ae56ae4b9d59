package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Dispatcher selects and invokes exactly one action per model reply.
type Dispatcher struct {
	actions []Action
	confirm ConfirmFunc
	// confirmBeforeApply gates every Apply behind the confirm callback.
	confirmBeforeApply bool
}

// NewDispatcher creates a dispatcher over an ordered action set.
func NewDispatcher(acts []Action, confirm ConfirmFunc, confirmBeforeApply bool) *Dispatcher {
	return &Dispatcher{actions: acts, confirm: confirm, confirmBeforeApply: confirmBeforeApply}
}

// Actions returns the ordered action set.
func (d *Dispatcher) Actions() []Action { return d.actions }

// Names returns the action names, in registration order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.actions))
	for i, a := range d.actions {
		names[i] = a.Name()
	}
	return names
}

// Dispatch matches the reply against the action set and applies the single
// matching action. matched reports whether a Result was produced at all:
// zero matching actions yield (Result{}, "") with matched=false and the
// loop simply proceeds.
//
// More than one match is a hard invariant violation, not a heuristic: the
// reply is rejected with guidance and no action runs. A refused
// confirmation, an Apply error, or an Apply panic all degrade to a
// non-terminal textual result so the loop keeps its forward progress.
func (d *Dispatcher) Dispatch(ctx context.Context, reply string) (result Result, matched bool, actionName string) {
	var hits []Action
	for _, a := range d.actions {
		if a.Matches(reply) {
			hits = append(hits, a)
		}
	}

	switch len(hits) {
	case 0:
		return Result{}, false, ""
	case 1:
	default:
		names := make([]string, len(hits))
		for i, a := range hits {
			names[i] = a.Name()
		}
		slog.Warn("Reply matched multiple actions", "actions", names)
		return Result{
			Text: fmt.Sprintf(
				"Only one action is permitted per turn, but this reply matched %d: %s.\n"+
					"Fix: keep a single action block and resend the others in later turns.",
				len(hits), strings.Join(names, ", ")),
		}, true, ""
	}

	act := hits[0]
	if d.confirmBeforeApply && d.confirm != nil {
		if !d.confirm(fmt.Sprintf("Execute action %s?", act.Name())) {
			slog.Info("Action declined by confirmation", "action", act.Name())
			return Result{}, false, act.Name()
		}
	}

	result, err := safeApply(ctx, act, reply)
	if err != nil {
		slog.Warn("Action failed", "action", act.Name(), "error", err)
		return Result{Text: fmt.Sprintf("Action %s failed: %v", act.Name(), err)}, true, act.Name()
	}
	return result, true, act.Name()
}

func safeApply(ctx context.Context, act Action, reply string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return act.Apply(ctx, reply)
}

// BuildUsagePrompt assembles the action-usage reminder injected into the
// addon prompt: each action's own instructions plus the single-action rule.
func BuildUsagePrompt(acts []Action) string {
	var sb strings.Builder
	sb.WriteString("# Available actions\n")
	for _, a := range acts {
		sb.WriteString("- " + a.Name() + "\n")
	}
	for _, a := range acts {
		if p := a.Prompt(); p != "" {
			sb.WriteString("\n" + p + "\n")
		}
	}
	sb.WriteString("\nRules: at most one action block per reply.")
	return sb.String()
}
