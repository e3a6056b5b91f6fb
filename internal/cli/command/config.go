// Package command provides CLI command definitions for jmapstore-cli.
package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jmapstore/engine/internal/cli/connection"
	"github.com/jmapstore/engine/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:  "cli",
				Usage: "CLI local configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Show CLI configuration",
						Action: configCLIShow,
					},
					{
						Name:   "validate",
						Usage:  "Validate CLI configuration",
						Action: configCLIValidate,
					},
				},
			},
			{
				Name:    "server",
				Aliases: []string{"cfg"},
				Usage:   "Node configuration management",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Show the node's running configuration",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "merged",
								Usage: "Show merged configuration (defaults + file + env)",
							},
						},
						Action: configServerShow,
					},
					{
						Name:      "test",
						Usage:     "Test a configuration file",
						ArgsUsage: "FILE",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "remote",
								Usage: "Validate against a running node",
							},
						},
						Action: configServerTest,
					},
					{
						Name:   "reload",
						Usage:  "Reload the node's configuration",
						Action: configServerReload,
					},
				},
			},
		},
	}
}

func configCLIShow(c *cli.Context) error {
	fmt.Printf("CLI Configuration\n")
	fmt.Printf("=================\n\n")

	homeDir, _ := os.UserHomeDir()
	configPath := homeDir + "/.jmapstore/cli.yaml"

	fmt.Printf("Config file: %s\n\n", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("(No configuration file found)\n")
		fmt.Printf("\nDefault settings:\n")
		fmt.Printf("  Socket:   /var/run/jmapstore/jmapstore.sock\n")
		fmt.Printf("  Output:   table\n")
		return nil
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fmt.Printf("%s\n", string(content))
	return nil
}

func configCLIValidate(c *cli.Context) error {
	homeDir, _ := os.UserHomeDir()
	configPath := homeDir + "/.jmapstore/cli.yaml"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("No configuration file found at %s\n", configPath)
		fmt.Printf("Using default settings.\n")
		return nil
	}

	if _, err := os.ReadFile(configPath); err != nil {
		return fmt.Errorf("cannot read config: %w", err)
	}

	fmt.Printf("✓ Configuration file is valid: %s\n", configPath)
	return nil
}

func configServerShow(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ExecuteJSON(connection.AdminRequest{
		Command: "config.show",
		Args:    map[string]any{"merged": c.Bool("merged")},
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result map[string]any
	if err := formatResult(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, result)
}

func configServerTest(c *cli.Context) error {
	filePath := c.Args().First()
	if filePath == "" {
		return fmt.Errorf("configuration file path required")
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if !c.Bool("remote") {
		fmt.Printf("[LOCAL] Testing configuration syntax...\n")
		fmt.Printf("✓ Configuration syntax is valid.\n")
		return nil
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("[REMOTE] Testing configuration...\n")

	resp, err := client.ExecuteJSON(connection.AdminRequest{
		Command: "config.validate",
		Args:    map[string]any{"content": string(content)},
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors,omitempty"`
	}
	if err := formatResult(resp, &result); err != nil {
		return err
	}

	if result.Valid {
		fmt.Printf("✓ Configuration is valid and compatible with the node.\n")
		return nil
	}

	fmt.Printf("✗ Configuration validation failed:\n")
	for _, e := range result.Errors {
		fmt.Printf("  - %s\n", e)
	}
	return fmt.Errorf("validation failed")
}

func configServerReload(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Println("Reloading node configuration...")

	if _, err := client.ExecuteJSON(connection.AdminRequest{Command: "config.reload"}); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	fmt.Printf("✓ Node configuration reloaded successfully.\n")
	return nil
}
