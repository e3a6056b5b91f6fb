// Package main provides the entry point for jmapstore-server, the
// replicated document storage engine behind a JMAP mail server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmapstore/engine/internal/cluster"
	"github.com/jmapstore/engine/internal/core/idassign"
	"github.com/jmapstore/engine/internal/core/store"
	"github.com/jmapstore/engine/internal/infra/confloader"
	"github.com/jmapstore/engine/internal/infra/shutdown"
	"github.com/jmapstore/engine/internal/server/config"
	"github.com/jmapstore/engine/internal/server/localserver"
	"github.com/jmapstore/engine/internal/server/replication"
	"github.com/jmapstore/engine/internal/storage/badgerkv"
	"github.com/jmapstore/engine/internal/telemetry/logger"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("jmapstore-server %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting jmapstore-server",
		"version", version,
		"commit", commit,
		"config", *configFile)

	engine, err := initStorage(cfg, slogLogger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	node, logs, writer, err := initCluster(cfg, engine, slogLogger)
	if err != nil {
		engine.Close()
		return fmt.Errorf("init cluster: %w", err)
	}
	adminServer, err := initAdminSocket(cfg, engine, node, slogLogger)
	if err != nil {
		node.Close()
		logs.Close()
		engine.Close()
		return fmt.Errorf("init admin socket: %w", err)
	}

	// No collection has a registered idassign.SnapshotReader yet (that
	// requires a concrete internal/core/orm schema, which this engine
	// does not ship one of), so the sweeper currently runs as a no-op
	// pass every cycle. It still starts here so wiring a schema package
	// in later only needs a Register call, not a new goroutine.
	sweeper := idassign.NewSweeper(engine, writer, slogLogger)
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweeperCtx, cfg.Storage.TombstoneSweepInterval)

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down tombstone sweeper")
		stopSweeper()
		sweeper.Stop()
		return nil
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down admin socket")
		return adminServer.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down cluster node")
		if err := node.Close(); err != nil {
			return err
		}
		return logs.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down storage engine")
		return engine.Close()
	})

	log.Info("node started",
		"node_id", node.NodeID(),
		"replication_addr", node.ReplicationAddr(),
		"admin_socket", cfg.Server.Local.Path)
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loaderInst := confloader.NewLoader(opts...)
	if err := loaderInst.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured application logger plus a
// slog.Logger for components (storage, cluster) that take one directly.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.SetDefault(log)

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Log.Level))
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slogLogger := slog.New(handler)

	return log, slogLogger, nil
}

func initStorage(cfg *config.ServerConfig, log *slog.Logger) (*badgerkv.Engine, error) {
	storageCfg := badgerkv.DefaultConfig(cfg.Storage.DataDir)
	if cfg.Storage.GCInterval > 0 {
		storageCfg.GCInterval = cfg.Storage.GCInterval.String()
	}
	return badgerkv.Open(storageCfg, log)
}

// initCluster wires the document store, the replicated log, and every
// cluster peer connection into one running node.
func initCluster(cfg *config.ServerConfig, engine *badgerkv.Engine, log *slog.Logger) (*cluster.Node, *cluster.LogStore, *store.Writer, error) {
	clusterCfg, err := config.ToClusterConfig(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	logs, err := cluster.OpenLogStore(clusterCfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}

	appender, err := cluster.NewLogAppender(engine, logs)
	if err != nil {
		logs.Close()
		return nil, nil, nil, err
	}
	writer := store.NewWriter(engine, appender, cfg.Storage.DefaultLanguage)

	adapter := replication.NewAdapter(engine, logs)
	catchup := cluster.NewCatchUp(engine)

	node, err := cluster.NewNode(clusterCfg, logs, adapter, adapter, catchup)
	if err != nil {
		logs.Close()
		return nil, nil, nil, err
	}
	appender.OnAppend(node.NotifyCommit)

	return node, logs, writer, nil
}

// initAdminSocket binds the Unix domain socket jmapstore-cli connects to
// for status, compaction, backup, and configuration commands.
func initAdminSocket(cfg *config.ServerConfig, engine *badgerkv.Engine, node *cluster.Node, log *slog.Logger) (*localserver.Server, error) {
	handler := localserver.NewHandler(engine, node, cfg, version)
	srv := localserver.New(cfg.Server.Local.Path, handler, log)

	ready := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			ready <- err
		}
	}()

	select {
	case err := <-ready:
		return nil, err
	case <-time.After(100 * time.Millisecond):
	}

	return srv, nil
}
