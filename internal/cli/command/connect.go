// Package command provides CLI command definitions for jmapstore-cli.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jmapstore/engine/internal/cli/connection"
)

// ConnectCommand returns the connect command.
func ConnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect to a node's admin socket",
		ArgsUsage: "[SOCKET_PATH]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Connection name (for saved connections)",
			},
		},
		Action: connectAction,
	}
}

func connectAction(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	socketPath := c.Args().First()
	if socketPath == "" {
		socketPath = flags.Socket
	}

	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}

	conn := &connection.Connection{
		Name:       c.String("name"),
		SocketPath: socketPath,
	}

	if err := mgr.Connect(conn); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	fmt.Printf("Connected to %s\n", socketPath)
	return nil
}

// DisconnectCommand returns the disconnect command.
func DisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:   "disconnect",
		Usage:  "Disconnect from the current node",
		Action: disconnectAction,
	}
}

func disconnectAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}

	if !mgr.IsConnected() {
		fmt.Println("Not connected to any node")
		return nil
	}

	mgr.Disconnect()
	fmt.Println("Disconnected")
	return nil
}
