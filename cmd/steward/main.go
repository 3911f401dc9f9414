// Package main is the entry point for the steward CLI.
package main

import (
	"fmt"
	"os"

	"steward/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
