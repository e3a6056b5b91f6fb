// Package connection provides connection management for jmapstore-cli.
//
// This package manages the CLI's connection to one node's local admin
// socket:
//
//   - manager.go: connection profile state
//   - socket.go: Unix socket client and the line-delimited JSON admin
//     request/response protocol
package connection
