package gossip

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/metrics"
)

// ErrEmptyValue is returned for mutations of the empty string.
var ErrEmptyValue = ierrors.New("value required")

// InMemory replicates between replicas living in the same process. Every
// mutation is applied locally and the touched element is pushed to each
// connected peer with its full timestamp history. For local dev/testing.
type InMemory struct {
	logger *slog.Logger
	set    *lww.Set[string]

	mu    sync.RWMutex
	peers []*InMemory
}

func NewInMemory(logger *slog.Logger, set *lww.Set[string]) *InMemory {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemory{
		logger: logger.With("component", "gossip_inmemory"),
		set:    set,
	}
}

// Connect links g and each peer in both directions.
func (g *InMemory) Connect(peers ...*InMemory) {
	for _, p := range peers {
		if p == g {
			continue
		}
		g.link(p)
		p.link(g)
	}
}

func (g *InMemory) link(p *InMemory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.peers {
		if existing == p {
			return
		}
	}
	g.peers = append(g.peers, p)
}

// Set returns the local replica.
func (g *InMemory) Set() *lww.Set[string] { return g.set }

func (g *InMemory) Add(ctx context.Context, value string) error {
	return g.mutate(ctx, value, (*lww.Set[string]).Add, (*lww.Set[string]).AddHistory)
}

func (g *InMemory) Remove(ctx context.Context, value string) error {
	return g.mutate(ctx, value, (*lww.Set[string]).Remove, (*lww.Set[string]).RemoveHistory)
}

type mutator func(*lww.Set[string], string, lww.Stamp) (*lww.Set[string], error)
type historian func(*lww.Set[string], string) ([]time.Time, bool)

func (g *InMemory) mutate(ctx context.Context, value string, apply mutator, history historian) error {
	start := time.Now()
	defer func() {
		metrics.ObserveGossipOperationDuration(metrics.GossipOpBroadcast, time.Since(start).Seconds())
	}()

	if value == "" {
		return ErrEmptyValue
	}
	if _, err := apply(g.set, value, lww.Now()); err != nil {
		return err
	}

	timestamps, _ := history(g.set, value)
	for _, p := range g.snapshotPeers() {
		if err := ctx.Err(); err != nil {
			return ierrors.Wrap(err, "propagation interrupted")
		}
		if _, err := apply(p.set, value, lww.WithHistory(timestamps...)); err != nil {
			metrics.RecordGossipMessage(metrics.GossipMsgOp, metrics.GossipStatusError)
			g.logger.Warn("peer rejected element", "value", value, "error", err)
			continue
		}
		metrics.RecordGossipMessage(metrics.GossipMsgOp, metrics.GossipStatusApplied)
	}

	return nil
}

// Sync merges the local replica with every peer.
func (g *InMemory) Sync(ctx context.Context) error {
	for _, p := range g.snapshotPeers() {
		if err := ctx.Err(); err != nil {
			return ierrors.Wrap(err, "sync interrupted")
		}
		if _, err := g.set.Merge(p.set); err != nil {
			return ierrors.Wrap(err, "merge with peer")
		}
		metrics.RecordGossipMessage(metrics.GossipMsgState, metrics.GossipStatusApplied)
	}

	return nil
}

func (g *InMemory) snapshotPeers() []*InMemory {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make([]*InMemory, len(g.peers))
	copy(cp, g.peers)
	return cp
}
