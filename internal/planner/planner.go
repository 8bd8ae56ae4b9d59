// Package planner optionally decomposes a task into sub-tasks executed by
// child agents, bounded by depth, and merges their results back into the
// parent's prompt.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HelmsmanAI/helmsman/internal/agent"
	"github.com/HelmsmanAI/helmsman/internal/protocol"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/session"
)

const (
	// PlanBlock delimits the YAML list of sub-task descriptions.
	PlanBlock = "PLAN"
	// ResultsBlock labels the merged per-sub-task results.
	ResultsBlock = "SUB_TASK_RESULTS"
	// SummaryBlock labels the synthesized combined summary.
	SummaryBlock = "RESULT_SUMMARY"
	// noPlanTag is the model's way of declining to decompose.
	noPlanTag = "<DONT_NEED/>"
)

const summaryPlaceholder = "(no combined summary available)"

// DefaultMaxSubTasks caps how many sub-tasks a single plan may produce.
const DefaultMaxSubTasks = 8

// TaskPlanner implements agent.Planner: it asks the model for a plan,
// runs one child agent per sub-task sequentially, and writes the plan,
// results, and a synthesis back into the parent's prompt.
type TaskPlanner struct {
	Retry       provider.RetryPolicy
	MaxSubTasks int

	// children records the names of child instances created, newest last.
	children []string
}

// New creates a planner with default limits.
func New() *TaskPlanner {
	return &TaskPlanner{Retry: provider.DefaultRetryPolicy(), MaxSubTasks: DefaultMaxSubTasks}
}

// Plan decomposes task for inst. The depth bound is a hard precondition:
// at or beyond it no child is ever constructed and "" is returned so the
// parent executes the task directly. The same applies when the model
// declines to plan or the plan cannot be parsed.
func (p *TaskPlanner) Plan(ctx context.Context, inst *agent.Instance, task string) (string, error) {
	if inst.PlanDepth >= inst.PlanMaxDepth {
		return "", nil
	}

	subTasks, planText, err := p.requestPlan(ctx, inst, task)
	if err != nil {
		return "", err
	}
	if len(subTasks) == 0 {
		return "", nil
	}
	if max := p.maxSubTasks(); len(subTasks) > max {
		slog.Warn("Plan truncated", "agent", inst.Name, "subtasks", len(subTasks), "max", max)
		subTasks = subTasks[:max]
	}

	results := p.runSubTasks(ctx, inst, task, planText, subTasks)
	summary := p.synthesize(ctx, inst, task, results)

	var sb strings.Builder
	sb.WriteString(task)
	sb.WriteString("\n\n")
	writeSection(&sb, PlanBlock, planText)
	writeSection(&sb, ResultsBlock, strings.Join(results, "\n"))
	writeSection(&sb, SummaryBlock, summary)
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Children returns the names of the child instances run so far.
func (p *TaskPlanner) Children() []string {
	return append([]string(nil), p.children...)
}

// requestPlan asks the model whether and how to decompose the task.
func (p *TaskPlanner) requestPlan(ctx context.Context, inst *agent.Instance, task string) (subTasks []string, planText string, err error) {
	prompt := fmt.Sprintf(
		"Decide whether this task should be split into independent sub-tasks:\n%s\n\n"+
			"If splitting helps, reply with one block containing a YAML list of sub-task descriptions:\n"+
			"%s\n- first sub-task\n- second sub-task\n%s\n"+
			"If the task is best done in one piece, reply with %s.",
		task, protocol.OpenTag(PlanBlock), protocol.CloseTag(PlanBlock), noPlanTag)

	reply, err := provider.ChatWithRetry(ctx, inst.Transport, p.Retry, inst.SystemPrompt,
		[]provider.Message{{Role: provider.RoleUser, Content: prompt}})
	if err != nil {
		return nil, "", fmt.Errorf("plan request: %w", err)
	}
	if strings.Contains(reply, noPlanTag) || !protocol.HasBlock(reply, PlanBlock) {
		return nil, "", nil
	}

	blocks, _ := protocol.ExtractBlocks(reply, PlanBlock)
	if len(blocks) == 0 {
		return nil, "", nil
	}
	var list []string
	if err := protocol.DecodeBlock(blocks[0], &list); err != nil {
		slog.Warn("Unparseable plan, running task directly", "agent", inst.Name, "error", err)
		return nil, "", nil
	}
	for _, item := range list {
		if s := strings.TrimSpace(item); s != "" {
			subTasks = append(subTasks, s)
		}
	}
	return subTasks, blocks[0], nil
}

// runSubTasks executes the children strictly in order. Each child sees the
// original task, the full plan, and every previous result. A failing
// child is recorded and the remaining sub-tasks still run.
func (p *TaskPlanner) runSubTasks(ctx context.Context, parent *agent.Instance, task, planText string, subTasks []string) []string {
	results := make([]string, 0, len(subTasks))
	for n, sub := range subTasks {
		child := p.newChild(parent, n)
		p.children = append(p.children, child.Name)

		input := fmt.Sprintf(
			"Original task:\n%s\n\nFull plan:\n%s\n\nYour sub-task:\n%s",
			task, planText, sub)
		if len(results) > 0 {
			input += "\n\nResults of previous sub-tasks:\n" + strings.Join(results, "\n")
		}

		out, err := child.Run(ctx, input)
		if err != nil {
			slog.Warn("Sub-task failed", "agent", child.Name, "subtask", n+1, "error", err)
			results = append(results, fmt.Sprintf("%d. %s: FAILED: %v", n+1, sub, err))
			continue
		}
		results = append(results, fmt.Sprintf("%d. %s: %s", n+1, sub, out.Text))
	}
	return results
}

// newChild derives a child instance from the parent: same transport and
// action set, fresh session, one level deeper, never interactive.
func (p *TaskPlanner) newChild(parent *agent.Instance, n int) *agent.Instance {
	name := fmt.Sprintf("%s.sub%d", parent.Name, n+1)
	return &agent.Instance{
		Name:           name,
		SystemPrompt:   parent.SystemPrompt,
		Transport:      parent.Transport,
		Dispatcher:     parent.Dispatcher,
		Bus:            parent.Bus,
		Session:        session.NewState(name),
		Compactor:      parent.Compactor,
		AutoComplete:   true,
		NonInteractive: true,
		PlanDepth:      parent.PlanDepth + 1,
		PlanMaxDepth:   parent.PlanMaxDepth,
		Planner:        p,
		Tracer:         parent.Tracer,
		Loop:           parent.Loop,
		Retry:          parent.Retry,
	}
}

// synthesize asks the model for one combined summary of all results.
func (p *TaskPlanner) synthesize(ctx context.Context, inst *agent.Instance, task string, results []string) string {
	prompt := fmt.Sprintf(
		"The task was:\n%s\n\nThe sub-task results are:\n%s\n\n"+
			"Write one combined summary of what was achieved.",
		task, strings.Join(results, "\n"))

	summary, err := provider.ChatWithRetry(ctx, inst.Transport, p.Retry, inst.SystemPrompt,
		[]provider.Message{{Role: provider.RoleUser, Content: prompt}})
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			slog.Warn("Plan synthesis failed", "agent", inst.Name, "error", err)
		}
		return summaryPlaceholder
	}
	return strings.TrimSpace(summary)
}

func (p *TaskPlanner) maxSubTasks() int {
	if p.MaxSubTasks > 0 {
		return p.MaxSubTasks
	}
	return DefaultMaxSubTasks
}

func writeSection(sb *strings.Builder, name, body string) {
	sb.WriteString(protocol.OpenTag(name))
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(body, "\n"))
	sb.WriteString("\n")
	sb.WriteString(protocol.CloseTag(name))
	sb.WriteString("\n\n")
}
