// Package main is the entry point for the fkreviews CLI.
package main

import (
	"os"

	"github.com/scrapeloop/fkreviews/cmd/fkreviews/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
