// Package main is the entry point for the fxv command.
package main

import (
	"os"

	"github.com/CageChen/fxv/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
