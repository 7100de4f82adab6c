package gossip

import (
	"context"
)

// Replicator applies mutations to the local replica and propagates them to
// the other replicas. Implementations never lose a local mutation when
// propagation fails; the next Sync repairs the peers.
type Replicator interface {
	Add(ctx context.Context, value string) error
	Remove(ctx context.Context, value string) error
	// Sync pushes the full local state to every known peer.
	Sync(ctx context.Context) error
}
