// Package config provides CLI configuration for jmapstore-cli.
//
// This package defines CLI-specific configuration:
//
//   - spec.go: CLIConfig struct (~/.jmapstore/cli.yaml)
//   - loader.go: configuration loading and merging
//
// Configuration includes the default admin socket path, saved connection
// profiles, and output format preferences.
package config
