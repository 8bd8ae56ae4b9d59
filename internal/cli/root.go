// Package cli implements the helmsman command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HelmsmanAI/helmsman/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/HelmsmanAI/helmsman/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  _   _      _\n" +
		" | | | | ___| |_ __ ___  ___ _ __ ___   __ _ _ __\n" +
		" | |_| |/ _ \\ | '_ ` _ \\/ __| '_ ` _ \\ / _` | '_ \\\n" +
		" |  _  |  __/ | | | | | \\__ \\ | | | | | (_| | | | |\n" +
		" |_| |_|\\___|_|_| |_| |_|___/_| |_| |_|\\__,_|_| |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "helmsman",
	Short: "Helmsman - autonomous task-execution core",
	Long:  color.CyanString(logo) + "\nAn agent loop that drives a model through think, act, observe cycles.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(tasksCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("Helmsman Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("Helmsman Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  found (" + path + ")")
			} else {
				fmt.Println("Config:  not found, using defaults (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  load error: %v\n", err)
			return
		}
		fmt.Printf("Model:   %s/%s\n", cfg.Model.Platform, cfg.Model.Name)
		fmt.Printf("Agents:  %d (main: %s)\n", len(cfg.Router.Agents), cfg.Router.Main)
		if cfg.Relay.Enabled {
			fmt.Printf("Relay:   %s -> %v\n", cfg.Relay.Topic, cfg.Relay.Brokers)
		} else {
			fmt.Println("Relay:   disabled")
		}
		if _, err := os.Stat(cfg.Paths.TraceDB); err == nil {
			fmt.Println("Traces:  " + cfg.Paths.TraceDB)
		}
	},
}
