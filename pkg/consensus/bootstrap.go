package consensus

import (
	"log/slog"
	"path/filepath"
	"time"

	raft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/metrics"
)

// NewSingleNodeRaft initializes a raft node whose FSM applies to set.
// dataDir must exist. bindAddr like "127.0.0.1:12000". With Bootstrap set
// and no prior state the node forms a single-member cluster; others join it
// through AddVoter.
func NewSingleNodeRaft(logger *slog.Logger, set *lww.Set[string], dataDir string, bindAddr string, serverID string, opts ...RaftOptions) (*RaftAdapter, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	raftLogger := newHCLogger(logger, "raft")

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(serverID)
	cfg.Logger = raftLogger
	var o RaftOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.SnapshotInterval > 0 {
		cfg.SnapshotInterval = o.SnapshotInterval
	}
	if o.SnapshotThreshold > 0 {
		cfg.SnapshotThreshold = o.SnapshotThreshold
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-log.bolt"))
	if err != nil {
		return nil, nil, ierrors.Wrap(err, "open log store")
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-stable.bolt"))
	if err != nil {
		_ = logStore.Close()
		return nil, nil, ierrors.Wrap(err, "open stable store")
	}
	closeStores := func() {
		_ = logStore.Close()
		_ = stableStore.Close()
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(dataDir, o.retainSnapshots(), raftLogger.Named("snapshot"))
	if err != nil {
		closeStores()
		return nil, nil, ierrors.Wrap(err, "open snapshot store")
	}
	transport, err := raft.NewTCPTransportWithLogger(bindAddr, nil, 3, 10*time.Second, raftLogger.Named("transport"))
	if err != nil {
		closeStores()
		return nil, nil, ierrors.Wrap(err, "open transport")
	}
	// bindAddr doubles as the advertised raft address.

	fsm := NewFSM(logger, serverID, set)
	r, err := raft.NewRaft(cfg, fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		metrics.RecordRaftOperation(metrics.RaftOpBootstrap, metrics.RaftResultRaftError)
		_ = transport.Close()
		closeStores()
		return nil, nil, ierrors.Wrap(err, "start raft")
	}
	adapter := NewRaftAdapter(logger, r, fsm)
	adapter.applyTimeout = o.applyTimeout()

	// Monitor leadership changes
	observer := raft.NewObserver(make(chan raft.Observation, 1), false,
		func(o *raft.Observation) bool {
			switch o.Data.(type) {
			case raft.LeaderObservation:
				metrics.IncrementRaftLeaderChanges()
				metrics.RecordRaftOperation(metrics.RaftOpLeadership, metrics.RaftResultChange)
				return true
			}
			return false
		})
	r.RegisterObserver(observer)
	metrics.RecordRaftOperation(metrics.RaftOpBootstrap, metrics.RaftResultSuccess)

	shutdown := func() {
		r.DeregisterObserver(observer)
		if err := r.Shutdown().Error(); err != nil {
			logger.Warn("raft shutdown failed", "error", err)
		}
		_ = transport.Close()
		closeStores()
	}

	// Bootstrap if requested and fresh
	future := r.GetConfiguration()
	if err := future.Error(); err != nil {
		shutdown()
		return nil, nil, err
	}
	if o.Bootstrap && len(future.Configuration().Servers) == 0 {
		cfg := raft.Configuration{Servers: []raft.Server{{ID: cfg.LocalID, Address: transport.LocalAddr()}}}
		if err := r.BootstrapCluster(cfg).Error(); err != nil {
			shutdown()
			return nil, nil, ierrors.Wrap(err, "bootstrap cluster")
		}
		logger.Info("bootstrapped raft cluster", "id", serverID, "addr", transport.LocalAddr())
	}

	return adapter, shutdown, nil
}
