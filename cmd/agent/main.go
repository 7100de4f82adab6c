package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/consensus"
	"github.com/raj/lww/pkg/gossip"
	"github.com/raj/lww/pkg/gossip/crdt"
	"github.com/raj/lww/pkg/gossip/memberlist"
	"github.com/raj/lww/pkg/httpserver"
	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/service"
	"github.com/raj/lww/pkg/tracing"
)

const (
	modeLocal  = "local"
	modeGossip = "gossip"
	modeRaft   = "raft"
)

type config struct {
	NodeID   string
	Mode     string
	HTTPAddr string
	LogLevel string

	Gossip       memberlist.Config
	SyncInterval time.Duration

	RaftBind string
	RaftDir  string
	RaftJoin string
	Raft     consensus.RaftOptions
}

func parseFlags() config {
	var cfg config
	var seeds string

	flag.StringVar(&cfg.NodeID, "node", "node-1", "node identifier")
	flag.StringVar(&cfg.Mode, "mode", modeLocal, "replication mode: local|gossip|raft")
	flag.StringVar(&cfg.HTTPAddr, "http", "127.0.0.1:18080", "HTTP listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "debug|info|warn|error")

	flag.StringVar(&cfg.Gossip.BindAddr, "gossip-bind", "127.0.0.1:7946", "memberlist bind address")
	flag.StringVar(&seeds, "gossip-seeds", "", "comma separated memberlist seeds")
	flag.StringVar(&cfg.Gossip.KeyHex, "gossip-key", "", "hex encoded gossip encryption key")
	flag.BoolVar(&cfg.Gossip.Compression, "gossip-compress", true, "gzip large gossip messages")
	flag.IntVar(&cfg.Gossip.MaxMessageSize, "gossip-max-msg", memberlist.DefaultMaxMessageSize, "message size above which gossip is compressed")
	flag.DurationVar(&cfg.Gossip.PushPullPeriod, "gossip-pushpull", 30*time.Second, "memberlist full state exchange interval")
	flag.DurationVar(&cfg.SyncInterval, "sync-interval", time.Minute, "interval of full state pushes to all members (0 disables)")

	flag.StringVar(&cfg.RaftBind, "raft-bind", "127.0.0.1:11000", "raft transport address")
	flag.StringVar(&cfg.RaftDir, "raft-dir", filepath.Join(os.TempDir(), "lww-raft"), "raft data directory")
	flag.StringVar(&cfg.RaftJoin, "raft-join", "", "HTTP address of a cluster member to join")
	flag.BoolVar(&cfg.Raft.Bootstrap, "raft-bootstrap", false, "bootstrap a new raft cluster")
	flag.DurationVar(&cfg.Raft.SnapshotInterval, "raft-snapshot-interval", 0, "raft snapshot check interval")
	flag.Uint64Var(&cfg.Raft.SnapshotThreshold, "raft-snapshot-threshold", 0, "raft logs between snapshots")
	flag.Parse()

	cfg.Gossip.NodeName = cfg.NodeID
	if seeds != "" {
		cfg.Gossip.Seeds = strings.Split(seeds, ",")
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func main() {
	cfg := parseFlags()
	logger := newLogger(cfg.LogLevel).With("node", cfg.NodeID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("agent failed", "error", err)
		os.Exit(1)
	}
	logger.Info("agent exiting", "reason", ctx.Err())
}

func run(ctx context.Context, logger *slog.Logger, cfg config) error {
	set := lww.New[string](nil)
	opts := service.Options{NodeID: cfg.NodeID}

	var (
		replicator gossip.Replicator
		cc         consensus.ConsensusClient
	)
	switch cfg.Mode {
	case modeLocal:
	case modeGossip:
		r, stop, err := crdt.New(logger, cfg.Gossip, set)
		if err != nil {
			return ierrors.Wrap(err, "start gossip")
		}
		defer func() { _ = stop() }()
		replicator = r
		go syncLoop(ctx, logger, r, cfg.SyncInterval)
	case modeRaft:
		if err := os.MkdirAll(cfg.RaftDir, 0o755); err != nil {
			return ierrors.Wrap(err, "create raft dir")
		}
		ra, stop, err := consensus.NewSingleNodeRaft(logger, set, cfg.RaftDir, cfg.RaftBind, cfg.NodeID, cfg.Raft)
		if err != nil {
			return ierrors.Wrap(err, "start raft")
		}
		defer stop()
		cc = ra
		replicator = consensus.NewReplicator(ra, nil)
		opts.DisableStateMerge = true
		if cfg.Raft.Bootstrap {
			go announceSelf(ctx, logger, ra, cfg.NodeID, cfg.HTTPAddr)
		}
		if cfg.RaftJoin != "" {
			if err := requestJoin(ctx, cfg.RaftJoin, cfg.NodeID, cfg.RaftBind, cfg.HTTPAddr); err != nil {
				return ierrors.Wrap(err, "join raft cluster")
			}
		}
	default:
		return ierrors.Errorf("unknown mode %q", cfg.Mode)
	}

	svc := service.NewReplicaService(logger, set, replicator, opts)
	stopHTTP := httpserver.Start(ctx, logger, cfg.HTTPAddr, httpserver.NewHandler(logger, svc, cc))
	defer func() { _ = stopHTTP(context.Background()) }()

	logger.Info("agent started", "mode", cfg.Mode, "http", cfg.HTTPAddr)
	<-ctx.Done()
	return nil
}

func syncLoop(ctx context.Context, logger *slog.Logger, r gossip.Replicator, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sync(ctx); err != nil {
				logger.Warn("state push failed", "error", err)
			}
		}
	}
}

// announceSelf records the bootstrap node's HTTP address once it leads, so
// followers can redirect writes to it.
func announceSelf(ctx context.Context, logger *slog.Logger, ra *consensus.RaftAdapter, id, httpAddr string) {
	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := ra.WaitForLeader(wctx); err != nil {
		logger.Warn("no leader to announce to", "error", err)
		return
	}
	if !ra.IsLeader() {
		return
	}
	if err := ra.Announce(wctx, id, httpAddr); err != nil {
		logger.Warn("announce http address failed", "error", err)
		return
	}
	logger.Info("announced http address", "id", id, "http", httpAddr)
}

func requestJoin(ctx context.Context, addr, id, raftAddr, httpAddr string) error {
	payload, _ := json.Marshal(map[string]string{"id": id, "addr": raftAddr, "http": httpAddr})
	jctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(jctx, http.MethodPost, "http://"+addr+"/raft/join", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ierrors.Errorf("join rejected: %s", resp.Status)
	}
	return nil
}
