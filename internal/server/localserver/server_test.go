package localserver

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServer_ListenAndServeRoundTrip(t *testing.T) {
	h, _ := openTestHandler(t)

	dir, err := os.MkdirTemp("", "jmapstore-localserver-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "admin.sock")

	srv := New(path, h, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	t.Cleanup(func() { srv.Close() })

	waitForSocket(t, path)

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := Request{Command: "system.health"}
	body, _ := json.Marshal(req)
	body = append(body, '\n')
	if _, err := conn.Write(body); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK response, got error %q", resp.Error)
	}
}

func TestServer_MalformedRequest(t *testing.T) {
	h, _ := openTestHandler(t)

	dir, err := os.MkdirTemp("", "jmapstore-localserver-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "admin.sock")
	srv := New(path, h, nil)

	go srv.ListenAndServe()
	t.Cleanup(func() { srv.Close() })

	waitForSocket(t, path)

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if resp.OK {
		t.Fatal("expected error response for malformed request")
	}
}

func TestServer_RemovesStaleSocketOnListen(t *testing.T) {
	h, _ := openTestHandler(t)

	dir, err := os.MkdirTemp("", "jmapstore-localserver-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "admin.sock")
	if err := os.WriteFile(path, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	srv := New(path, h, nil)
	go srv.ListenAndServe()
	t.Cleanup(func() { srv.Close() })

	waitForSocket(t, path)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %q was never created", path)
}
