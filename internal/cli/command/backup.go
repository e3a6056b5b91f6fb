// Package command provides CLI command definitions for jmapstore-cli.
package command

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jmapstore/engine/internal/cli/connection"
	"github.com/jmapstore/engine/internal/cli/output"
)

// BackupCommand returns the backup subcommand group. Every operation runs
// against the node's own snapshot machinery (badgerkv.Engine.SaveSnapshot /
// LoadSnapshot, optionally encrypted via internal/storage/snapshotenc) through
// the admin socket; the CLI never touches the data directory directly.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Snapshot backup and restore commands",
		Subcommands: []*cli.Command{
			{
				Name:  "snapshot",
				Usage: "Trigger a new snapshot on the node",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "description",
						Usage: "Human-readable note stored alongside the snapshot",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until the snapshot completes",
					},
				},
				Action: backupCreate,
			},
			{
				Name:   "list",
				Usage:  "List snapshots available on the node",
				Action: backupList,
			},
			{
				Name:      "download",
				Usage:     "Download a snapshot to a local file",
				ArgsUsage: "SNAPSHOT_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Local file to write the snapshot to",
					},
				},
				Action: backupDownload,
			},
			{
				Name:  "restore",
				Usage: "Restore the node from a snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Snapshot ID already present on the node",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Local snapshot file to upload and restore",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: backupRestore,
			},
			{
				Name:      "status",
				Usage:     "Show the status of a snapshot operation",
				ArgsUsage: "SNAPSHOT_ID",
				Action:    backupStatus,
			},
		},
	}
}

type snapshotInfo struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	Encrypted   bool      `json:"encrypted"`
}

func backupCreate(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	args := map[string]any{
		"wait": c.Bool("wait"),
	}
	if desc := c.String("description"); desc != "" {
		args["description"] = desc
	}

	fmt.Println("Requesting snapshot...")
	resp, err := client.ExecuteJSON(connection.AdminRequest{Command: "backup.snapshot", Args: args})
	if err != nil {
		return fmt.Errorf("snapshot request failed: %w", err)
	}

	var info snapshotInfo
	if err := formatResult(resp, &info); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	if output.Format(flags.Output) == output.FormatJSON {
		return (&output.JSONFormatter{}).Format(os.Stdout, info)
	}

	fmt.Printf("Snapshot %s created (%s)\n", info.ID, formatSize(info.SizeBytes))
	return nil
}

func backupList(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ExecuteJSON(connection.AdminRequest{Command: "backup.list"})
	if err != nil {
		return fmt.Errorf("list request failed: %w", err)
	}

	var snapshots []snapshotInfo
	if err := formatResult(resp, &snapshots); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, snapshots)
}

func backupDownload(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	snapshotID := c.Args().First()
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID required")
	}

	outputPath := c.String("output")
	if outputPath == "" {
		outputPath = snapshotID + ".snap"
	}

	resp, err := client.ExecuteJSON(connection.AdminRequest{
		Command: "backup.download",
		Args:    map[string]any{"id": snapshotID},
	})
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}

	var payload struct {
		DataBase64 string `json:"data_base64"`
	}
	if err := formatResult(resp, &payload); err != nil {
		return err
	}

	if err := writeBase64File(outputPath, payload.DataBase64); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	fmt.Printf("Snapshot %s written to %s\n", snapshotID, outputPath)
	return nil
}

func backupRestore(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	id := c.String("id")
	file := c.String("file")
	if id == "" && file == "" {
		return fmt.Errorf("one of --id or --file is required")
	}

	if !c.Bool("force") {
		ok, err := confirmWithInput(os.Stdin, "This will overwrite the node's current data. Continue? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Restore cancelled")
			return nil
		}
	}

	args := map[string]any{}
	if id != "" {
		args["id"] = id
	}
	if file != "" {
		data, err := readBase64File(file)
		if err != nil {
			return fmt.Errorf("read snapshot file: %w", err)
		}
		args["data_base64"] = data
	}

	fmt.Println("Restoring from snapshot...")
	resp, err := client.ExecuteJSON(connection.AdminRequest{Command: "backup.restore", Args: args})
	if err != nil {
		return fmt.Errorf("restore request failed: %w", err)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := formatResult(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Restore %s\n", result.Status)
	return nil
}

func backupStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	snapshotID := c.Args().First()
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID required")
	}

	resp, err := client.ExecuteJSON(connection.AdminRequest{
		Command: "backup.status",
		Args:    map[string]any{"id": snapshotID},
	})
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}

	var info snapshotInfo
	if err := formatResult(resp, &info); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, info)
}

// formatSize renders a byte count as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

// confirmWithInput prints prompt to stdout and reads a yes/no answer from r.
func confirmWithInput(r *os.File, prompt string) (bool, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func writeBase64File(path, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func readBase64File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
