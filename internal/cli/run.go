package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HelmsmanAI/helmsman/internal/agent"
	"github.com/HelmsmanAI/helmsman/internal/bus"
	"github.com/HelmsmanAI/helmsman/internal/config"
	"github.com/HelmsmanAI/helmsman/internal/planner"
	"github.com/HelmsmanAI/helmsman/internal/provider"
	"github.com/HelmsmanAI/helmsman/internal/relay"
	"github.com/HelmsmanAI/helmsman/internal/router"
	"github.com/HelmsmanAI/helmsman/internal/trace"
)

var (
	runReplies    []string
	runRepliesRaw string
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a task through the configured agents",
	Long: "Runs a task through the router using a scripted transport.\n" +
		"Replies come from --reply flags or --replies-file (one per line);\n" +
		"real model transports plug in as libraries, not through this command.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		replies := runReplies
		if runRepliesRaw != "" {
			file, err := os.Open(runRepliesRaw)
			if err != nil {
				return fmt.Errorf("open replies file: %w", err)
			}
			defer file.Close()
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					replies = append(replies, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read replies file: %w", err)
			}
		}

		transport := provider.NewScriptTransport(cfg.Model.Platform, cfg.Model.Name, replies...)
		r, cleanup, err := buildRouter(cfg, transport)
		if err != nil {
			return err
		}
		defer cleanup()

		task := strings.Join(args, " ")
		out, err := r.Run(cmd.Context(), task)
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("Result:"))
		fmt.Println(out)
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runReplies, "reply", nil, "scripted model reply (repeatable, in order)")
	runCmd.Flags().StringVar(&runRepliesRaw, "replies-file", "", "file with one scripted reply per line")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print lifecycle events")
}

// buildRouter wires the full stack from configuration: bus, trace store,
// relay, planner, and the router itself.
func buildRouter(cfg *config.Config, transport provider.Transport) (*router.Router, func(), error) {
	eventBus := bus.NewEventBus()
	var cleanups []func()
	cleanup := func() {
		for _, f := range cleanups {
			f()
		}
	}

	if runVerbose {
		for _, name := range []string{bus.TaskStarted, bus.BeforeAction, bus.AfterAction, bus.TaskCompleted} {
			n := name
			eventBus.Subscribe(n, func(ev bus.Event) {
				fmt.Println(color.HiBlackString("event %s agent=%v", n, ev.Payload["agent"]))
			})
		}
	}

	configs := make([]router.AgentConfig, 0, len(cfg.Router.Agents))
	for _, a := range cfg.Router.Agents {
		configs = append(configs, router.AgentConfig{
			Name:           a.Name,
			SystemPrompt:   a.SystemPrompt,
			AutoComplete:   a.AutoComplete,
			ClearAfterSend: a.ClearAfterSend,
			Loop: agent.LoopConfig{
				MaxTurns:         cfg.Loop.MaxTurns,
				ReminderEvery:    cfg.Loop.ReminderEvery,
				CompactEvery:     cfg.Loop.CompactEvery,
				CompletionMarker: cfg.Loop.CompletionMarker,
				NeedSummary:      cfg.Loop.NeedSummary,
			},
		})
	}

	r, err := router.New(transport, eventBus, cfg.Router.Main, configs)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	r.CommonPrompt = cfg.Router.CommonPrompt
	r.HandoffSummary = cfg.Router.HandoffSummary
	r.MaxHops = cfg.Router.MaxHops
	r.CompactDir = cfg.Paths.OffloadDir
	r.Retry = provider.RetryPolicy{
		MaxRetries:        cfg.Retry.MaxRetries,
		BaseDelay:         cfg.Retry.BaseDelaySecs,
		MaxDelay:          cfg.Retry.MaxDelaySecs,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Jitter:            cfg.Retry.Jitter,
	}

	if cfg.Planner.Enabled {
		p := planner.New()
		p.Retry = r.Retry
		p.MaxSubTasks = cfg.Planner.MaxSubTasks
		r.Planner = p
		r.PlanMaxDepth = cfg.Planner.MaxDepth
	}

	if store, err := trace.Open(cfg.Paths.TraceDB); err == nil {
		r.Tracer = store
		cleanups = append(cleanups, func() { store.Close() })
	} else {
		fmt.Fprintf(os.Stderr, "trace store unavailable: %v\n", err)
	}

	if cfg.Relay.Enabled && len(cfg.Relay.Brokers) > 0 {
		rl := relay.New(cfg.Relay.Brokers, cfg.Relay.Topic)
		rl.Attach(eventBus)
		cleanups = append(cleanups, func() {
			rl.Detach(eventBus)
			rl.Close()
		})
	}

	return r, cleanup, nil
}
