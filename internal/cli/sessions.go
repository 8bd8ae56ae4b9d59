package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HelmsmanAI/helmsman/internal/config"
	"github.com/HelmsmanAI/helmsman/internal/session"
	"github.com/HelmsmanAI/helmsman/internal/trace"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved agent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := session.NewStore(cfg.Paths.SessionsDir)
		if err != nil {
			return err
		}

		printHeader("Saved Sessions")
		infos := store.List()
		if len(infos) == 0 {
			fmt.Println("(none)")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-20s %s/%s  turns=%d  saved %s\n",
				info.Agent, info.Platform, info.Model, info.Turns,
				info.SavedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var tasksLimit int

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show recent task runs from the trace store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := trace.Open(cfg.Paths.TraceDB)
		if err != nil {
			return err
		}
		defer store.Close()

		printHeader("Recent Tasks")
		tasks, err := store.RecentTasks(tasksLimit)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("(none)")
			return nil
		}
		for _, t := range tasks {
			in := t.ContentIn
			if len(in) > 48 {
				in = in[:48] + "..."
			}
			fmt.Printf("%s  %-10s %-12s turns=%-3d %s\n",
				t.CreatedAt.Format("2006-01-02 15:04"), t.Status, t.AgentName, t.Turns, in)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "maximum tasks to show")
}
