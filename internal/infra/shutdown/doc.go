// Package shutdown provides graceful shutdown for jmapstore-server.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Shutdown timeout: hooks receive a context with that deadline; a hook
//     that ignores the context is not interrupted
//   - Cleanup callback registration
//   - Shutdown coordination
//
// Usage:
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return srv.Shutdown(ctx) })
//	err := h.Wait() // blocks until SIGINT/SIGTERM, then runs hooks
//
// @design DS-0501
package shutdown
