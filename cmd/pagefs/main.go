package main

import (
	"fmt"
	"os"

	"pagefs/internal/cli/commands"
)

// Set by goreleaser ldflags
var version = "dev"

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
