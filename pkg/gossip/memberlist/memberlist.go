// Package memberlist builds hashicorp memberlist nodes for the gossip
// replicators.
package memberlist

import (
	"log/slog"
	"net"
	"strconv"

	hmemberlist "github.com/hashicorp/memberlist"
	"github.com/iotaledger/hive.go/ierrors"
)

// Delegate is everything a replicator plugs into memberlist.
type Delegate interface {
	hmemberlist.Delegate
	hmemberlist.EventDelegate
}

// Create starts a memberlist node for cfg with d as message and event
// delegate and joins the configured seeds. A failed join is logged, not
// returned, so the first node of a cluster can start alone.
func Create(logger *slog.Logger, cfg Config, d Delegate) (*hmemberlist.Memberlist, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "memberlist")

	mlCfg, err := cfg.LANConfig(logger)
	if err != nil {
		return nil, err
	}
	mlCfg.Delegate = d
	mlCfg.Events = d

	ml, err := hmemberlist.Create(mlCfg)
	if err != nil {
		return nil, ierrors.Wrap(err, "create memberlist")
	}
	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			logger.Warn("join seeds failed", "seeds", cfg.Seeds, "error", err)
		} else {
			logger.Info("joined cluster", "contacted", n)
		}
	}

	return ml, nil
}

// NewQueue returns a broadcast queue sized by numNodes.
func NewQueue(numNodes func() int, retransmitMult int) *hmemberlist.TransmitLimitedQueue {
	if retransmitMult <= 0 {
		retransmitMult = hmemberlist.DefaultLANConfig().RetransmitMult
	}
	return &hmemberlist.TransmitLimitedQueue{
		NumNodes:       numNodes,
		RetransmitMult: retransmitMult,
	}
}

// Broadcast is a memberlist broadcast. Broadcasts sharing a non-empty Key
// replace each other in the queue, so only the newest one is retransmitted.
type Broadcast struct {
	Key string
	Msg []byte
}

var _ hmemberlist.NamedBroadcast = (*Broadcast)(nil)

func (b *Broadcast) Name() string    { return b.Key }
func (b *Broadcast) Message() []byte { return b.Msg }
func (b *Broadcast) Finished()       {}

func (b *Broadcast) Invalidates(other hmemberlist.Broadcast) bool {
	nb, ok := other.(hmemberlist.NamedBroadcast)
	if !ok || b.Key == "" {
		return false
	}
	return b.Key == nb.Name()
}

// ParseAddr splits host:port into host and numeric port.
func ParseAddr(addr string) (string, int, error) {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, ierrors.Wrapf(err, "invalid address %q", addr)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, ierrors.Errorf("invalid port in address %q", addr)
	}
	return host, port, nil
}
