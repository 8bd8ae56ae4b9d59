// Package router relays structured hand-off messages between
// independently configured agent instances.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/HelmsmanAI/helmsman/internal/actions"
	"github.com/HelmsmanAI/helmsman/internal/agent"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/session"
	"github.com/HelmsmanAI/helmsman/internal/trace"
)

// AgentConfig describes one routable agent. Instances are materialized
// lazily on first reference.
type AgentConfig struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	AutoComplete bool   `json:"auto_complete"`
	// ClearAfterSend compacts the sender's history after each hand-off.
	ClearAfterSend bool `json:"clear_after_send"`
	Loop           agent.LoopConfig
}

// DefaultMaxHops bounds the number of hand-offs in a single Run.
const DefaultMaxHops = 8

// Router owns the agent configs and the arena of live instances.
type Router struct {
	Transport provider.Transport
	Bus       *bus.EventBus
	Tracer    *trace.Store
	Retry     provider.RetryPolicy
	// CommonPrompt is prepended to every agent's system prompt.
	CommonPrompt string
	// CompactDir is where clear-after-send compaction offloads history.
	CompactDir string
	// HandoffSummary enables the sender-work summary on each hand-off,
	// produced by a direct model call outside any loop.
	HandoffSummary bool
	MaxHops        int
	// Planner, when set, is attached to every instance together with
	// PlanMaxDepth.
	Planner      agent.Planner
	PlanMaxDepth int

	main      string
	configs   map[string]AgentConfig
	instances map[string]*agent.Instance
	// extra actions registered on every instance alongside the hand-off
	// action.
	extra []actions.Action
}

// New creates a router over the given configs with main as the entry
// agent.
func New(t provider.Transport, eventBus *bus.EventBus, main string, configs []AgentConfig) (*Router, error) {
	r := &Router{
		Transport:      t,
		Bus:            eventBus,
		Retry:          provider.DefaultRetryPolicy(),
		HandoffSummary: true,
		MaxHops:        DefaultMaxHops,
		main:           main,
		configs:        make(map[string]AgentConfig, len(configs)),
		instances:      make(map[string]*agent.Instance),
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("agent config with empty name")
		}
		if _, dup := r.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", cfg.Name)
		}
		r.configs[cfg.Name] = cfg
	}
	if _, ok := r.configs[main]; !ok {
		return nil, fmt.Errorf("main agent %q not among configs (%s)", main, strings.Join(r.Targets(), ", "))
	}
	return r, nil
}

// RegisterAction adds an action to every instance created from now on.
// Registration happens before the first Run; live instances keep their
// original set.
func (r *Router) RegisterAction(a actions.Action) {
	r.extra = append(r.extra, a)
}

// Targets returns all routable agent names, sorted.
func (r *Router) Targets() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasInstance reports whether the named agent has been materialized.
func (r *Router) HasInstance(name string) bool {
	_, ok := r.instances[name]
	return ok
}

// Route validates a directive against the config registry. Unknown
// targets produce an error naming every valid target; nothing is
// materialized or mutated on rejection.
func (r *Router) Route(d *actions.Directive) error {
	if d == nil || strings.TrimSpace(d.To) == "" {
		return fmt.Errorf("hand-off directive has no target; valid targets: %s", strings.Join(r.Targets(), ", "))
	}
	if _, ok := r.configs[d.To]; !ok {
		return fmt.Errorf("unknown hand-off target %q; valid targets: %s", d.To, strings.Join(r.Targets(), ", "))
	}
	return nil
}

// Run drives the conversation starting at the main agent, following
// hand-off directives until an agent produces a terminal answer.
func (r *Router) Run(ctx context.Context, input string) (string, error) {
	current := r.main
	content := input
	from := ""
	summary := ""

	maxHops := r.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	for hop := 0; hop <= maxHops; hop++ {
		inst, err := r.instance(current)
		if err != nil {
			return "", err
		}

		task := content
		if from != "" {
			task = forwardedInput(from, summary, content)
		}

		out, err := inst.Run(ctx, task)
		if err != nil {
			return "", fmt.Errorf("agent %s: %w", current, err)
		}

		if out.Directive == nil {
			if strings.TrimSpace(out.Text) == "" {
				return "", fmt.Errorf("agent %s returned neither text nor a hand-off directive", current)
			}
			return out.Text, nil
		}

		if err := r.Route(out.Directive); err != nil {
			return "", fmt.Errorf("agent %s: %w", current, err)
		}

		summary = ""
		if r.HandoffSummary {
			summary = r.summarizeSender(ctx, inst)
		}
		slog.Info("Routing hand-off", "from", current, "to", out.Directive.To, "hop", hop)

		if r.configs[current].ClearAfterSend {
			r.compactSender(ctx, inst)
		}

		from = current
		current = out.Directive.To
		content = out.Directive.Content
	}

	return "", fmt.Errorf("hand-off budget of %d hops exhausted", maxHops)
}

// instance returns the live instance for name, creating it on first use.
func (r *Router) instance(name string) (*agent.Instance, error) {
	if inst, ok := r.instances[name]; ok {
		return inst, nil
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q; valid targets: %s", name, strings.Join(r.Targets(), ", "))
	}

	acts := make([]actions.Action, 0, len(r.extra)+1)
	acts = append(acts, &HandoffAction{Router: r, Self: name})
	acts = append(acts, r.extra...)

	inst := &agent.Instance{
		Name:           name,
		SystemPrompt:   joinPrompts(r.CommonPrompt, cfg.SystemPrompt),
		Transport:      r.Transport,
		Dispatcher:     actions.NewDispatcher(acts, nil, false),
		Bus:            r.Bus,
		Session:        session.NewState(name),
		Compactor:      session.NewCompactor(r.CompactDir),
		AutoComplete:   cfg.AutoComplete,
		NonInteractive: true,
		PlanMaxDepth:   r.PlanMaxDepth,
		Planner:        r.Planner,
		Tracer:         r.Tracer,
		Loop:           cfg.Loop,
		Retry:          r.Retry,
	}
	r.instances[name] = inst
	return inst, nil
}

// summarizeSender asks the model for a short account of the sender's work
// so far. This is a direct call, never the loop, so a hand-off cannot
// recurse. Failure yields an empty summary.
func (r *Router) summarizeSender(ctx context.Context, inst *agent.Instance) string {
	if inst.Session.Len() == 0 {
		return ""
	}
	history := append(inst.Session.Snapshot(), provider.Message{
		Role:    provider.RoleUser,
		Content: "Briefly summarize the work you have done so far, for the agent taking over.",
	})
	summary, err := provider.ChatWithRetry(ctx, r.Transport, r.Retry, inst.SystemPrompt, history)
	if err != nil {
		slog.Warn("Hand-off summary failed", "agent", inst.Name, "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

func (r *Router) compactSender(ctx context.Context, inst *agent.Instance) {
	if inst.Compactor == nil {
		return
	}
	hint := inst.Compactor.Compact(ctx, inst.Session, r.Transport)
	if hint != "" {
		inst.Session.SetAddonPrompt(hint)
	}
}

// forwardedInput is the wire form a routed agent receives.
func forwardedInput(from, summary, content string) string {
	return fmt.Sprintf("Please handle this message:\nfrom: %s\nsummary_of_sender_work: %s\ncontent: %s",
		from, summary, content)
}

func joinPrompts(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, "\n\n")
}
