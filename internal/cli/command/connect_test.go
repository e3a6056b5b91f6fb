package command

import (
	"testing"
)

func TestConnectCommand(t *testing.T) {
	cmd := ConnectCommand()
	if cmd == nil {
		t.Fatal("ConnectCommand returned nil")
	}

	if cmd.Name != "connect" {
		t.Errorf("Name = %q, want %q", cmd.Name, "connect")
	}

	// Check flags
	flagNames := make(map[string]bool)
	for _, flag := range cmd.Flags {
		flagNames[flag.Names()[0]] = true
	}

	if !flagNames["name"] {
		t.Error("connect should have --name flag")
	}

	if cmd.Action == nil {
		t.Error("connect should have an action")
	}
}

func TestDisconnectCommand(t *testing.T) {
	cmd := DisconnectCommand()
	if cmd == nil {
		t.Fatal("DisconnectCommand returned nil")
	}

	if cmd.Name != "disconnect" {
		t.Errorf("Name = %q, want %q", cmd.Name, "disconnect")
	}

	if cmd.Action == nil {
		t.Error("disconnect should have an action")
	}
}

// Action function tests

func TestConnectAction_Success(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	ctx := makeTestContext(server, map[string]any{
		"name": "test-connection",
	}, []string{server.Path})

	err := connectAction(ctx)
	if err != nil {
		t.Errorf("connectAction() error = %v", err)
	}
}

func TestConnectAction_WithDefaultSocket(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	// No positional argument, uses default from --socket flag
	ctx := testContext(server)
	err := connectAction(ctx)
	if err != nil {
		t.Errorf("connectAction() with default socket error = %v", err)
	}
}

func TestDisconnectAction_NotConnected(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	ctx := testContext(server)
	// Should not error even when not connected
	err := disconnectAction(ctx)
	if err != nil {
		t.Errorf("disconnectAction() error = %v", err)
	}
}

func TestDisconnectAction_Connected(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	ctx := testContext(server)
	// First connect
	_ = connectAction(ctx)
	// Then disconnect
	err := disconnectAction(ctx)
	if err != nil {
		t.Errorf("disconnectAction() error = %v", err)
	}
}
