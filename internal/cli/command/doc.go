// Package command provides CLI command definitions for jmapstore-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: root command, global flags, shared helpers
//   - connect.go: connection management commands
//   - system.go: node status/health/compaction commands
//   - backup.go: snapshot backup and restore commands
//   - config.go: CLI and node configuration commands
//
// Every command that talks to a node goes through EnsureConnected and the
// admin socket's line-delimited JSON protocol (see internal/cli/connection).
package command
