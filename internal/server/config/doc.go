// Package config provides server configuration for jmapstore.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default configuration values
//   - verify.go: business validation (directories, port ranges)
//   - sanitize.go: log sanitization (hide sensitive values)
//   - cluster.go: ServerConfig -> internal/cluster.Config conversion
//
// Configuration is loaded via internal/infra/confloader and supports
// two sources: files and environment variables.
package config
