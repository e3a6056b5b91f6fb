// Package repl provides an interactive loop skeleton for jmapstore-cli.
//
// This package implements a Read-Eval-Print Loop for interactive sessions:
//
//   - repl.go: prompt loop that trims each line, records it in history and
//     stops on exit, quit or end of input; it does not execute commands
//   - completer.go: prefix completion over a fixed list of command names
//   - history.go: in-memory command history with load/save to a file
//
// The loop does not call the completer, reads one line per command, and
// emits no color. The package is not wired into the jmapstore-cli
// command tree.
//
// @design DS-0602
package repl
