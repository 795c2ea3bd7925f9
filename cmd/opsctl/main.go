// Package main is the entry point for opsctl, the opsplane CLI.
package main

import (
	"os"

	"opsplane/cmd/opsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
