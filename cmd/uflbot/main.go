// Package main is the entry point for the uflbot CLI.
package main

import (
	"os"

	"github.com/uflbot/uflbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
