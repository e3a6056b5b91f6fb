// Package command provides CLI command definitions for jmapstore-cli.
package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jmapstore/engine/internal/cli/connection"
	"github.com/jmapstore/engine/internal/cli/output"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Node management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show node status summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check node health",
				Action: systemHealth,
			},
			{
				Name:  "compact",
				Usage: "Trigger storage value-log compaction",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Preview without executing",
					},
				},
				Action: systemGC,
			},
		},
	}
}

func systemStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ExecuteJSON(connection.AdminRequest{Command: "system.status"})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result map[string]any
	if err := formatResult(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON:
		formatter := &output.JSONFormatter{}
		return formatter.Format(os.Stdout, result)
	default:
		fmt.Printf("Node Status\n")
		fmt.Printf("===========\n\n")

		if version, ok := result["version"].(string); ok {
			fmt.Printf("Version:       %s\n", version)
		}
		if nodeID, ok := result["node_id"].(string); ok {
			fmt.Printf("Node ID:       %s\n", nodeID)
		}
		if uptime, ok := result["uptime"].(string); ok {
			fmt.Printf("Uptime:        %s\n", uptime)
		}
		if docs, ok := result["document_count"].(float64); ok {
			fmt.Printf("Documents:     %.0f\n", docs)
		}
		if bytes, ok := result["storage_bytes"].(float64); ok {
			fmt.Printf("Storage:       %.2f MB\n", bytes/1024/1024)
		}
		if peers, ok := result["peer_count"].(float64); ok {
			fmt.Printf("Peers:         %.0f\n", peers)
		}
		return nil
	}
}

func systemHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ExecuteJSON(connection.AdminRequest{Command: "system.health"})
	if err != nil {
		PrintError("Health check failed: %v", err)
		return fmt.Errorf("node unhealthy")
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := formatResult(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON:
		formatter := &output.JSONFormatter{}
		return formatter.Format(os.Stdout, result)
	default:
		if result.Status == "healthy" {
			fmt.Printf("✓ Node is healthy\n")
		} else {
			fmt.Printf("✗ Node is unhealthy: %s\n", result.Status)
		}
		return nil
	}
}

func systemGC(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	dryRun := c.Bool("dry-run")

	args := map[string]any{}
	if dryRun {
		args["dry_run"] = true
		fmt.Println("[DRY RUN] Would trigger value-log compaction...")
	} else {
		fmt.Println("Triggering value-log compaction...")
	}

	resp, err := client.ExecuteJSON(connection.AdminRequest{Command: "storage.compact", Args: args})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		ReclaimedBytes int64 `json:"reclaimed_bytes"`
		DryRun         bool  `json:"dry_run"`
	}
	if err := formatResult(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON:
		formatter := &output.JSONFormatter{}
		return formatter.Format(os.Stdout, result)
	default:
		if dryRun {
			fmt.Printf("\n[DRY RUN] Would reclaim:\n")
		} else {
			fmt.Printf("\nCompaction completed:\n")
		}
		fmt.Printf("  Reclaimed storage: %.2f KB\n", float64(result.ReclaimedBytes)/1024)
		return nil
	}
}
