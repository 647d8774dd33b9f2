package main

import (
	"os"

	"github.com/wonny/equindex/cmd/equindex/commands"
)

// main is the entry point for the equindex CLI
// ⭐ Unified CLI entry point: go run ./cmd/equindex [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
