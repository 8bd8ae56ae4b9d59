package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/trace"
)

// Run drives the loop until the task completes, a terminal action fires,
// or the turn budget runs out. The returned Outcome carries either final
// text or a hand-off directive.
func (i *Instance) Run(ctx context.Context, task string) (Outcome, error) {
	i.Session.SetPrompt(task)

	if i.Planner != nil {
		planned, err := i.Planner.Plan(ctx, i, task)
		if err != nil {
			slog.Warn("Planning failed, running task directly", "agent", i.Name, "error", err)
		} else if planned != "" {
			i.Session.SetPrompt(planned)
		}
	}

	taskID := i.traceStart(task)
	i.emit(bus.TaskStarted, map[string]any{"task": task})

	remindIn := i.Loop.ReminderEvery
	for turn := 0; turn < i.maxTurns(); turn++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, i.fatal(taskID, fmt.Errorf("run cancelled: %w", err))
		}
		if out, done := i.pollInterrupt(); done {
			return i.finish(ctx, taskID, out)
		}

		if i.Session.AddonPrompt == "" {
			i.Session.SetAddonPrompt(i.defaultAddonPrompt())
		}
		input := i.Session.JoinPrompt()
		history := append(i.Session.Snapshot(), provider.Message{
			Role:    provider.RoleUser,
			Content: input,
		})

		i.emit(bus.BeforeModelCall, map[string]any{"turn": turn, "input": input})
		start := time.Now()
		reply, err := provider.ChatWithRetry(ctx, i.Transport, i.Retry, i.SystemPrompt, history)
		i.emit(bus.AfterModelCall, map[string]any{"turn": turn, "reply": reply})
		if err != nil {
			return Outcome{}, i.fatal(taskID, fmt.Errorf("transport exhausted: %w", err))
		}
		i.traceSpan(taskID, trace.SpanModelCall, fmt.Sprintf("turn %d", turn+1), "", time.Since(start))

		if strings.TrimSpace(reply) == "" {
			// No-op turn. The pending prompt stays as it is so the next
			// turn re-asks the same question.
			slog.Warn("Empty reply from model", "agent", i.Name, "turn", turn)
			continue
		}

		i.Session.ClearPrompts()
		i.Session.AppendTurn(input, reply)

		if out, done := i.pollInterrupt(); done {
			return i.finish(ctx, taskID, out)
		}

		i.emit(bus.BeforeAction, map[string]any{"turn": turn, "reply": reply})
		start = time.Now()
		result, matched, actionName := i.Dispatcher.Dispatch(ctx, reply)
		i.emit(bus.AfterAction, map[string]any{
			"turn": turn, "action": actionName, "matched": matched, "terminal": result.Terminal,
		})
		if matched {
			i.Session.LastAction = actionName
			i.traceSpan(taskID, trace.SpanAction, actionName, result.Text, time.Since(start))
			if result.Terminal {
				return i.finish(ctx, taskID, Outcome{Text: result.Text, Directive: result.Directive})
			}
			if result.Text != "" {
				i.Session.SetPrompt(joinNonEmpty(i.Session.Prompt, result.Text))
			}
		}

		if protocol.ContainsCompletion(reply, i.Marker()) {
			final := strings.TrimSpace(strings.ReplaceAll(reply, i.Marker(), ""))
			return i.finish(ctx, taskID, Outcome{Text: final})
		}

		if i.Loop.ReminderEvery > 0 {
			remindIn--
			if remindIn <= 0 {
				remindIn = i.Loop.ReminderEvery
				i.Session.SetAddonPrompt(joinNonEmpty(
					i.Session.AddonPrompt, actions.BuildUsagePrompt(i.Dispatcher.Actions())))
			}
		}

		if i.Loop.CompactEvery > 0 && i.Session.TurnCount >= i.Loop.CompactEvery {
			i.compactHistory(ctx, taskID)
		}
	}

	return Outcome{}, i.fatal(taskID, fmt.Errorf("turn budget of %d exhausted", i.maxTurns()))
}

// compactHistory shrinks the session history and injects the continuation
// hint into the next turn's addon prompt.
func (i *Instance) compactHistory(ctx context.Context, taskID string) {
	if i.Compactor == nil {
		return
	}
	i.emit(bus.BeforeHistoryClear, map[string]any{"messages": i.Session.Len()})
	start := time.Now()
	hint := i.Compactor.Compact(ctx, i.Session, i.Transport)
	i.emit(bus.AfterHistoryClear, map[string]any{"hint": hint})
	i.traceSpan(taskID, trace.SpanCompaction, "history compacted", "", time.Since(start))

	if hint != "" {
		i.Session.SetAddonPrompt(joinNonEmpty(i.Session.AddonPrompt, hint))
	}
}

// finish optionally runs the final summary turn, then emits completion
// and records the task outcome.
func (i *Instance) finish(ctx context.Context, taskID string, out Outcome) (Outcome, error) {
	if i.Loop.NeedSummary && out.Directive == nil {
		out.Text = i.summarize(ctx, out.Text)
	}
	i.emit(bus.TaskCompleted, map[string]any{"text": out.Text, "handoff": out.Directive != nil})
	i.traceEnd(taskID, trace.TaskStatusCompleted, out.Text, "")
	return out, nil
}

// summarize asks the model for a closing summary of the whole run. The
// pre-summary text is kept when the model has nothing to add.
func (i *Instance) summarize(ctx context.Context, fallback string) string {
	prompt := i.Loop.SummaryPrompt
	if prompt == "" {
		prompt = "The task is complete. Summarize what was done and the final result."
	}

	i.emit(bus.BeforeSummary, nil)
	history := append(i.Session.Snapshot(), provider.Message{
		Role:    provider.RoleUser,
		Content: prompt,
	})
	summary, err := provider.ChatWithRetry(ctx, i.Transport, i.Retry, i.SystemPrompt, history)
	i.emit(bus.AfterSummary, map[string]any{"summary": summary})

	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			slog.Warn("Final summary failed", "agent", i.Name, "error", err)
		}
		return fallback
	}
	return summary
}

func (i *Instance) fatal(taskID string, err error) error {
	i.traceEnd(taskID, trace.TaskStatusFailed, "", err.Error())
	return err
}

// pollInterrupt checks the interrupt callback. done=true means the run
// ends now with the returned outcome; otherwise a pending interrupt
// replaced the next prompt and the loop continues.
func (i *Instance) pollInterrupt() (Outcome, bool) {
	if i.NonInteractive || i.Interrupt == nil {
		return Outcome{}, false
	}
	intr := i.Interrupt()
	if intr == nil {
		return Outcome{}, false
	}
	if intr.Terminate {
		text := intr.Input
		if text == "" {
			text = "Task interrupted by user."
		}
		return Outcome{Text: text}, true
	}
	if intr.Input != "" {
		i.Session.SetPrompt(intr.Input)
	}
	return Outcome{}, false
}

// defaultAddonPrompt is injected whenever no addon guidance is pending:
// the action list plus, under autoComplete, the completion instruction.
func (i *Instance) defaultAddonPrompt() string {
	var sb strings.Builder
	sb.WriteString("Judge whether the task is complete before acting further.\n")
	if acts := i.Dispatcher.Actions(); len(acts) > 0 {
		sb.WriteString(actions.BuildUsagePrompt(acts))
		sb.WriteString("\n")
	}
	if i.AutoComplete {
		sb.WriteString(fmt.Sprintf("When the task is fully complete, include %s in your reply.", i.Marker()))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (i *Instance) traceStart(task string) string {
	if i.Tracer == nil {
		return ""
	}
	rec, _, err := i.Tracer.CreateTask(i.Name, task, i.Transport.ModelName(), "")
	if err != nil {
		slog.Warn("Trace task create failed", "agent", i.Name, "error", err)
		return ""
	}
	return rec.TaskID
}

func (i *Instance) traceSpan(taskID, spanType, title, detail string, d time.Duration) {
	if i.Tracer == nil || taskID == "" {
		return
	}
	if err := i.Tracer.AddSpan(taskID, spanType, title, detail, d); err != nil {
		slog.Debug("Trace span write failed", "task", taskID, "error", err)
	}
}

func (i *Instance) traceEnd(taskID, status, out, errText string) {
	if i.Tracer == nil || taskID == "" {
		return
	}
	if err := i.Tracer.UpdateTaskStatus(taskID, status, out, errText, i.Session.TurnCount); err != nil {
		slog.Debug("Trace task update failed", "task", taskID, "error", err)
	}
}

func joinNonEmpty(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, "\n")
}
