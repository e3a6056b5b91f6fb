// Package command provides CLI command definitions for jmapstore-cli.
//
// It uses urfave/cli/v2 for command parsing and runs one command per
// invocation; the interactive loop in internal/cli/repl is not wired in.
package command

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jmapstore/engine/internal/cli/connection"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "jmapstore-cli",
		Usage:   "jmapstore node administration tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ConnectCommand(),
			DisconnectCommand(),
			SystemCommand(),
			BackupCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			mgr := connection.NewManager()
			c.App.Metadata["connMgr"] = mgr
			return nil
		},
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "node admin socket path",
			EnvVars: []string{"JMAPSTORE_SOCKET"},
			Value:   "/var/run/jmapstore/jmapstore.sock",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Socket string

	Output string // table, json, yaml
	Wide   bool

	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Socket:  c.String("socket"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata["connMgr"].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// EnsureConnected returns a socket client for the node's admin socket,
// connecting to the --socket flag's path (or the current connection's
// path, if one was established via the connect command).
func EnsureConnected(c *cli.Context) (*connection.SocketClient, error) {
	flags := ParseGlobalFlags(c)

	path := flags.Socket
	if mgr := GetConnectionManager(c); mgr != nil && mgr.IsConnected() {
		path = mgr.Current().SocketPath
	}

	client := connection.NewSocketClient(path)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return client, nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// formatResult unmarshals an admin response's Result payload into target.
func formatResult(resp connection.AdminResponse, target any) error {
	if len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncateID shortens a long identifier for compact table display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:13] + "..."
}
