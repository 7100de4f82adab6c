package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raj/lww/pkg/lww"
)

func TestNewSingleNodeRaft_ProposeAndApply(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node")
	}

	set := lww.New[string](nil)
	adapter, shutdown, err := NewSingleNodeRaft(nil, set, t.TempDir(), "127.0.0.1:0", "n1", RaftOptions{Bootstrap: true})
	require.NoError(t, err)
	t.Cleanup(shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, adapter.WaitForLeader(ctx))
	require.Eventually(t, adapter.IsLeader, 10*time.Second, 50*time.Millisecond)

	r := NewReplicator(adapter, nil)
	require.NoError(t, r.Add(ctx, "a"))
	require.NoError(t, r.Add(ctx, "b"))
	require.NoError(t, r.Remove(ctx, "a"))

	require.True(t, set.Get().Equal(lww.NewValues("b")))
	require.NotEmpty(t, adapter.LeaderAddress())
	require.Len(t, adapter.StateSnapshot("n1").Adds, 2)
}

func TestNewSingleNodeRaft_AnnounceLeaderHTTPAddr(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node")
	}

	adapter, shutdown, err := NewSingleNodeRaft(nil, lww.New[string](nil), t.TempDir(), "127.0.0.1:0", "n1", RaftOptions{Bootstrap: true})
	require.NoError(t, err)
	t.Cleanup(shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, adapter.WaitForLeader(ctx))
	require.Eventually(t, adapter.IsLeader, 10*time.Second, 50*time.Millisecond)

	require.Empty(t, adapter.LeaderHTTPAddress())
	require.ErrorIs(t, adapter.Announce(ctx, "n1", ""), ErrInvalidMember)

	require.NoError(t, adapter.Announce(ctx, "n1", "127.0.0.1:18080"))
	require.Equal(t, "127.0.0.1:18080", adapter.LeaderHTTPAddress())

	ne := adapter.NotLeader()
	require.Equal(t, adapter.LeaderAddress(), ne.LeaderAddr)
	require.Equal(t, "127.0.0.1:18080", ne.LeaderHTTPAddr)
}
