// Package repl provides the interactive REPL mode for jmapstore-cli.
package repl

import "strings"

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a new Completer.
func NewCompleter() *Completer {
	return &Completer{
		commands: []string{
			"config", "config cli", "config cli show", "config cli validate",
			"config server", "config server show", "config server test", "config server reload",
			"backup", "backup snapshot", "backup list", "backup download", "backup restore", "backup status",
			"system", "system status", "system health", "system compact",
			"connect", "disconnect",
			"help", "exit", "quit",
		},
	}
}

// Complete returns completion suggestions for the given prefix.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
