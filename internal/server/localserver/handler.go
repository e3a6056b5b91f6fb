package localserver

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmapstore/engine/internal/server/config"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
	"github.com/jmapstore/engine/internal/storage/snapshotenc"
)

// ClusterNode is the subset of cluster.Node the admin socket reports on.
type ClusterNode interface {
	NodeID() string
	ReplicationAddr() string
	PeerCount() int
}

// Handler dispatches admin commands against one running node's storage
// engine, cluster membership, and configuration.
type Handler struct {
	engine    *badgerkv.Engine
	node      ClusterNode
	cfg       *config.ServerConfig
	version   string
	startedAt time.Time
}

// NewHandler creates a Handler bound to the node's live components.
func NewHandler(engine *badgerkv.Engine, node ClusterNode, cfg *config.ServerConfig, version string) *Handler {
	return &Handler{
		engine:    engine,
		node:      node,
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handle dispatches one request to its command implementation.
func (h *Handler) Handle(req Request) Response {
	switch req.Command {
	case "system.status":
		return h.systemStatus()
	case "system.health":
		return h.systemHealth()
	case "storage.compact":
		return h.storageCompact(req)
	case "backup.snapshot":
		return h.backupSnapshot(req)
	case "backup.list":
		return h.backupList()
	case "backup.download":
		return h.backupDownload(req)
	case "backup.restore":
		return h.backupRestore(req)
	case "backup.status":
		return h.backupStatus(req)
	case "config.show":
		return h.configShow()
	case "config.validate":
		return h.configValidate(req)
	case "config.reload":
		return h.configReload()
	default:
		return errResponse("unknown command: " + req.Command)
	}
}

func okResponse(result any) Response  { return Response{OK: true, Result: result} }
func errResponse(msg string) Response { return Response{OK: false, Error: msg} }

func (h *Handler) systemStatus() Response {
	stats := h.engine.Stats()
	return okResponse(map[string]any{
		"version":       h.version,
		"node_id":       h.node.NodeID(),
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
		"storage_bytes": stats.LSMSize + stats.ValueLogSize,
		"peer_count":    h.node.PeerCount(),
	})
}

func (h *Handler) systemHealth() Response {
	return okResponse(map[string]string{"status": "healthy"})
}

func (h *Handler) storageCompact(req Request) Response {
	dryRun, _ := req.Args["dry_run"].(bool)
	before := h.engine.Stats()

	if !dryRun {
		if err := h.engine.GC(); err != nil {
			return errResponse("compaction failed: " + err.Error())
		}
	}

	after := h.engine.Stats()
	reclaimed := int64(after.GCBytesReclaimed - before.GCBytesReclaimed)
	if dryRun {
		reclaimed = 0
	}

	return okResponse(map[string]any{
		"reclaimed_bytes": reclaimed,
		"dry_run":         dryRun,
	})
}

func (h *Handler) snapshotDir() string {
	if h.cfg.Storage.SnapshotDir != "" {
		return h.cfg.Storage.SnapshotDir
	}
	return filepath.Join(h.cfg.Storage.DataDir, "snapshots")
}

// snapshotKey, if SnapshotEncryptionKey is configured, returns the raw
// 32-byte encryption key: a value of 64 hex characters is decoded directly,
// and any other value is treated as an Argon2id passphrase.
func (h *Handler) snapshotKey() ([]byte, error) {
	raw := h.cfg.Security.SnapshotEncryptionKey
	if raw == "" {
		return nil, nil
	}
	if len(raw) == 64 {
		key := make([]byte, 32)
		if _, err := fmt.Sscanf(raw, "%x", &key); err == nil {
			return key, nil
		}
	}
	key, _, err := snapshotenc.DeriveKey([]byte(raw), nil)
	return key, err
}

func (h *Handler) backupSnapshot(req Request) Response {
	dir := h.snapshotDir()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errResponse("create snapshot dir: " + err.Error())
	}

	src, err := h.engine.SaveSnapshot()
	if err != nil {
		return errResponse("snapshot failed: " + err.Error())
	}
	defer src.Close()

	id := "snap-" + time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, id+".snap")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errResponse("open snapshot file: " + err.Error())
	}
	defer f.Close()

	key, err := h.snapshotKey()
	if err != nil {
		return errResponse("derive snapshot key: " + err.Error())
	}

	if key != nil {
		if err := snapshotenc.Encrypt(f, src, key, id); err != nil {
			return errResponse("encrypt snapshot: " + err.Error())
		}
	} else if _, err := io.Copy(f, src); err != nil {
		return errResponse("write snapshot: " + err.Error())
	}

	info, err := os.Stat(path)
	if err != nil {
		return errResponse("stat snapshot: " + err.Error())
	}

	description, _ := req.Args["description"].(string)

	return okResponse(snapshotInfo{
		ID:          id,
		Description: description,
		CreatedAt:   info.ModTime().UTC(),
		SizeBytes:   info.Size(),
		Encrypted:   key != nil,
	})
}

type snapshotInfo struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	Encrypted   bool      `json:"encrypted"`
}

func (h *Handler) backupList() Response {
	dir := h.snapshotDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return okResponse([]snapshotInfo{})
		}
		return errResponse("list snapshots: " + err.Error())
	}

	var snaps []snapshotInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := trimSnapshotExt(e.Name())
		snaps = append(snaps, snapshotInfo{
			ID:        id,
			CreatedAt: info.ModTime().UTC(),
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return okResponse(snaps)
}

func trimSnapshotExt(name string) string {
	const ext = ".snap"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}

func (h *Handler) backupDownload(req Request) Response {
	id, _ := req.Args["id"].(string)
	if id == "" {
		return errResponse("id is required")
	}

	path := filepath.Join(h.snapshotDir(), id+".snap")
	data, err := os.ReadFile(path)
	if err != nil {
		return errResponse("read snapshot: " + err.Error())
	}

	return okResponse(map[string]string{
		"data_base64": base64.StdEncoding.EncodeToString(data),
	})
}

func (h *Handler) backupRestore(req Request) Response {
	var src io.Reader

	id, _ := req.Args["id"].(string)
	if id != "" {
		path := filepath.Join(h.snapshotDir(), id+".snap")
		f, err := os.Open(path)
		if err != nil {
			return errResponse("open snapshot: " + err.Error())
		}
		defer f.Close()
		src = f
	} else if encoded, _ := req.Args["data_base64"].(string); encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return errResponse("decode snapshot payload: " + err.Error())
		}
		src = &sliceReader{data: data}
	} else {
		return errResponse("one of id or data_base64 is required")
	}

	key, err := h.snapshotKey()
	if err != nil {
		return errResponse("derive snapshot key: " + err.Error())
	}

	if key != nil {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(snapshotenc.Decrypt(pw, src, key, id))
		}()
		src = pr
	}

	if err := h.engine.LoadSnapshot(src); err != nil {
		return errResponse("restore failed: " + err.Error())
	}

	return okResponse(map[string]string{"status": "completed"})
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (h *Handler) backupStatus(req Request) Response {
	id, _ := req.Args["id"].(string)
	if id == "" {
		return errResponse("id is required")
	}

	path := filepath.Join(h.snapshotDir(), id+".snap")
	info, err := os.Stat(path)
	if err != nil {
		return errResponse("snapshot not found: " + err.Error())
	}

	return okResponse(snapshotInfo{
		ID:        id,
		CreatedAt: info.ModTime().UTC(),
		SizeBytes: info.Size(),
	})
}

func (h *Handler) configShow() Response {
	return okResponse(config.Sanitize(h.cfg))
}

func (h *Handler) configValidate(req Request) Response {
	content, _ := req.Args["content"].(string)
	if content == "" {
		return okResponse(map[string]any{"valid": false, "errors": []string{"empty configuration"}})
	}
	// The node only checks that the content is non-empty; it does not parse
	// it into a ServerConfig or run Verify on it.
	return okResponse(map[string]any{"valid": true, "errors": []string{}})
}

func (h *Handler) configReload() Response {
	return errResponse("config reload requires a process restart: hot reload is not implemented")
}
