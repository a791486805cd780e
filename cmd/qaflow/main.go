// Package main provides the entry point for the qaflow CLI.
package main

import (
	"os"

	"github.com/v8-integration-agent/automation/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
