package consensus

import (
	"context"

	"github.com/raj/lww/pkg/clock"
	"github.com/raj/lww/pkg/gossip"
	"github.com/raj/lww/pkg/types"
)

var _ gossip.Replicator = (*Replicator)(nil)

// Replicator turns set mutations into raft proposals. The replica itself is
// only ever modified by the FSM once the proposal commits.
type Replicator struct {
	client ConsensusClient
	clock  clock.Clock
}

// NewReplicator stamps proposals with clk; a nil clk means a monotonic
// system clock.
func NewReplicator(client ConsensusClient, clk clock.Clock) *Replicator {
	if clk == nil {
		clk = clock.NewMonotonic(nil)
	}
	return &Replicator{client: client, clock: clk}
}

func (r *Replicator) Add(ctx context.Context, value string) error {
	if value == "" {
		return gossip.ErrEmptyValue
	}
	return r.client.ProposeEvent(ctx, &types.AddEvent{Value: value, Timestamps: r.now()})
}

func (r *Replicator) Remove(ctx context.Context, value string) error {
	if value == "" {
		return gossip.ErrEmptyValue
	}
	return r.client.ProposeEvent(ctx, &types.RemoveEvent{Value: value, Timestamps: r.now()})
}

// Sync is a no-op: raft members converge by replaying the same log.
func (r *Replicator) Sync(context.Context) error { return nil }

func (r *Replicator) now() []int64 {
	return []int64{r.clock.Now().UnixNano()}
}
