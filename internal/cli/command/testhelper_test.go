package command

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jmapstore/engine/internal/cli/connection"
)

// mockServer is a fake node admin socket for testing CLI commands: it
// dispatches each AdminRequest to a registered handler by command name.
type mockServer struct {
	listener net.Listener
	Path     string
	handlers map[string]func(connection.AdminRequest) connection.AdminResponse
}

func newMockServer() *mockServer {
	dir, err := os.MkdirTemp("", "jmapstore-cli-test-*")
	if err != nil {
		panic(err)
	}
	path := filepath.Join(dir, "admin.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		panic(err)
	}

	m := &mockServer{
		listener: listener,
		Path:     path,
		handlers: make(map[string]func(connection.AdminRequest) connection.AdminResponse),
	}
	go m.serve()
	return m
}

func (m *mockServer) serve() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.handleConn(conn)
	}
}

func (m *mockServer) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		var req connection.AdminRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return
		}

		handler, ok := m.handlers[req.Command]
		var resp connection.AdminResponse
		if !ok {
			resp = connection.AdminResponse{OK: false, Error: "unknown command: " + req.Command}
		} else {
			resp = handler(req)
		}

		body, _ := json.Marshal(resp)
		conn.Write(append(body, '\n'))
	}
}

func (m *mockServer) handle(command string, fn func(connection.AdminRequest) connection.AdminResponse) {
	m.handlers[command] = fn
}

func (m *mockServer) Close() {
	m.listener.Close()
	os.RemoveAll(filepath.Dir(m.Path))
}

func okResult(data any) connection.AdminResponse {
	body, _ := json.Marshal(data)
	return connection.AdminResponse{OK: true, Result: body}
}

func errResult(message string) connection.AdminResponse {
	return connection.AdminResponse{OK: false, Error: message}
}

// testContext creates a CLI context for testing with the mock server.
func testContext(server *mockServer, args ...string) *cli.Context {
	app := &cli.App{
		Name:  "test",
		Flags: globalFlags(),
		Metadata: map[string]any{
			"connMgr": connection.NewManager(),
		},
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		f.Apply(set)
	}

	fullArgs := []string{"--socket", server.Path}
	fullArgs = append(fullArgs, args...)
	set.Parse(fullArgs)

	return cli.NewContext(app, set, nil)
}

// makeTestContext creates a CLI context with specific flags for testing actions.
func makeTestContext(server *mockServer, extraFlags map[string]any, args []string) *cli.Context {
	app := &cli.App{
		Name:  "test",
		Flags: globalFlags(),
		Metadata: map[string]any{
			"connMgr": connection.NewManager(),
		},
	}

	allFlags := []cli.Flag{}
	allFlags = append(allFlags, globalFlags()...)

	existingFlags := make(map[string]bool)
	for _, f := range allFlags {
		for _, name := range f.Names() {
			existingFlags[name] = true
		}
	}

	for name, val := range extraFlags {
		if existingFlags[name] {
			continue
		}
		switch v := val.(type) {
		case string:
			allFlags = append(allFlags, &cli.StringFlag{Name: name, Value: v})
		case int:
			allFlags = append(allFlags, &cli.IntFlag{Name: name, Value: v})
		case bool:
			allFlags = append(allFlags, &cli.BoolFlag{Name: name, Value: v})
		case time.Duration:
			allFlags = append(allFlags, &cli.DurationFlag{Name: name, Value: v})
		case []string:
			allFlags = append(allFlags, &cli.StringSliceFlag{Name: name})
		}
		existingFlags[name] = true
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range allFlags {
		f.Apply(set)
	}

	cliArgs := []string{"--socket", server.Path}
	for name, val := range extraFlags {
		switch v := val.(type) {
		case string:
			if v != "" {
				cliArgs = append(cliArgs, "--"+name, v)
			}
		case int:
			if v != 0 {
				cliArgs = append(cliArgs, "--"+name, fmt.Sprintf("%d", v))
			}
		case bool:
			if v {
				cliArgs = append(cliArgs, "--"+name)
			}
		case time.Duration:
			if v != 0 {
				cliArgs = append(cliArgs, "--"+name, v.String())
			}
		case []string:
			for _, s := range v {
				cliArgs = append(cliArgs, "--"+name, s)
			}
		}
	}
	cliArgs = append(cliArgs, args...)

	set.Parse(cliArgs)

	return cli.NewContext(app, set, nil)
}
