// Package output provides output formatting for jmapstore-cli.
//
// This package handles all CLI output formatting:
//
//   - formatter.go: Formatter interface and factory
//   - table.go: Table rendering with wide mode support
//   - json.go: JSON output formatting
//   - yaml.go: YAML formatter placeholder; its Format writes no output
//   - spinner.go: Progress animation for long operations
//
// Formatters support:
//
//   - Multiple output formats (table, json; yaml is accepted but writes nothing)
//   - Wide mode for additional columns
//   - Plain text output; no color is emitted
//   - Machine-readable output for scripting
//
// @design DS-0601
package output
