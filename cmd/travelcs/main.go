// Package main provides the entry point for the travelcs CLI.
package main

import (
	"os"

	"github.com/angeless/travelcs/cmd/travelcs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
