// Package main is the entry point for the helmsman CLI.
package main

import (
	"os"

	"github.com/HelmsmanAI/helmsman/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
