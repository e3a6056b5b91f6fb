// Package main provides the entry point for jmapstore-cli.
//
// jmapstore-cli is the command-line administration tool for a jmapstore
// node. It runs one command per invocation over the node's local admin
// socket; it has no interactive mode.
package main

import (
	"fmt"
	"os"

	"github.com/jmapstore/engine/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
