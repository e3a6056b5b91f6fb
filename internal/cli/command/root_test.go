package command

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestApp(t *testing.T) {
	app := App()
	if app == nil {
		t.Fatal("App() returned nil")
	}

	if app.Name != "jmapstore-cli" {
		t.Errorf("Name = %q, want %q", app.Name, "jmapstore-cli")
	}
	if app.Usage == "" {
		t.Error("Usage should not be empty")
	}

	commandNames := make(map[string]bool)
	for _, cmd := range app.Commands {
		commandNames[cmd.Name] = true
	}

	requiredCommands := []string{"connect", "disconnect", "system", "backup", "config"}
	for _, name := range requiredCommands {
		if !commandNames[name] {
			t.Errorf("missing required command: %s", name)
		}
	}
}

func TestApp_GlobalFlags(t *testing.T) {
	app := App()

	flagNames := make(map[string]bool)
	for _, flag := range app.Flags {
		flagNames[flag.Names()[0]] = true
	}

	requiredFlags := []string{"socket", "output", "wide", "verbose"}
	for _, name := range requiredFlags {
		if !flagNames[name] {
			t.Errorf("missing required flag: %s", name)
		}
	}
}

func TestApp_Before(t *testing.T) {
	app := App()

	app.Metadata = make(map[string]interface{})

	ctx := cli.NewContext(app, nil, nil)
	err := app.Before(ctx)
	if err != nil {
		t.Fatalf("Before hook failed: %v", err)
	}

	mgr := GetConnectionManager(ctx)
	if mgr == nil {
		t.Error("connection manager should be created by Before hook")
	}
}

func TestGlobalFlags(t *testing.T) {
	flags := globalFlags()

	if len(flags) == 0 {
		t.Error("globalFlags should return flags")
	}

	for _, flag := range flags {
		if len(flag.Names()) == 0 {
			t.Error("flag should have at least one name")
		}
	}
}

func TestParseGlobalFlags(t *testing.T) {
	app := &cli.App{
		Flags: globalFlags(),
		Action: func(c *cli.Context) error {
			flags := ParseGlobalFlags(c)

			if flags.Socket != "/tmp/test.sock" {
				t.Errorf("Socket = %q, want %q", flags.Socket, "/tmp/test.sock")
			}
			if flags.Output != "json" {
				t.Errorf("Output = %q, want %q", flags.Output, "json")
			}
			if !flags.Wide {
				t.Error("Wide should be true")
			}
			if !flags.Verbose {
				t.Error("Verbose should be true")
			}
			return nil
		},
	}

	args := []string{
		"test",
		"--socket", "/tmp/test.sock",
		"--output", "json",
		"--wide",
		"--verbose",
	}

	err := app.Run(args)
	if err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
}

func TestParseGlobalFlags_Defaults(t *testing.T) {
	app := &cli.App{
		Flags: globalFlags(),
		Action: func(c *cli.Context) error {
			flags := ParseGlobalFlags(c)

			if flags.Socket != "/var/run/jmapstore/jmapstore.sock" {
				t.Errorf("Socket default = %q, want %q", flags.Socket, "/var/run/jmapstore/jmapstore.sock")
			}
			if flags.Output != "table" {
				t.Errorf("Output default = %q, want %q", flags.Output, "table")
			}
			if flags.Wide {
				t.Error("Wide default should be false")
			}
			if flags.Verbose {
				t.Error("Verbose default should be false")
			}
			return nil
		},
	}

	err := app.Run([]string{"test"})
	if err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
}

func TestGetConnectionManager(t *testing.T) {
	app := App()
	app.Metadata = make(map[string]interface{})

	ctx := cli.NewContext(app, nil, nil)
	mgr := GetConnectionManager(ctx)
	if mgr != nil {
		t.Error("should return nil without Before hook")
	}

	app.Before(ctx)
	mgr = GetConnectionManager(ctx)
	if mgr == nil {
		t.Error("should return manager after Before hook")
	}
}

func TestEnsureConnected(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "admin.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	app := &cli.App{
		Flags: globalFlags(),
		Action: func(c *cli.Context) error {
			client, err := EnsureConnected(c)
			if err != nil {
				t.Fatalf("EnsureConnected failed: %v", err)
			}
			if client == nil {
				t.Error("client should not be nil")
			}
			return nil
		},
	}

	args := []string{"test", "--socket", socketPath}

	err = app.Run(args)
	if err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
}

func TestPrintError(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	PrintError("test error: %s", "details")

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if output != "error: test error: details\n" {
		t.Errorf("PrintError output = %q, want %q", output, "error: test error: details\n")
	}
}

func TestTruncateID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"short", "short"},
		{"exactly16chars!!", "exactly16chars!!"},
		{"acct-01kct9ns8he7a9m022x0tgbhds", "acct-01kct9ns..."},
		{"a", "a"},
		{"", ""},
	}

	for _, tt := range tests {
		got := truncateID(tt.input)
		if got != tt.want {
			t.Errorf("truncateID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGlobalFlags_EnvVars(t *testing.T) {
	flags := globalFlags()

	envVarFlags := make(map[string][]string)
	for _, flag := range flags {
		if sf, ok := flag.(*cli.StringFlag); ok {
			envVarFlags[sf.Name] = sf.EnvVars
		}
	}

	if len(envVarFlags["socket"]) == 0 || envVarFlags["socket"][0] != "JMAPSTORE_SOCKET" {
		t.Error("socket flag should have JMAPSTORE_SOCKET env var")
	}
}
