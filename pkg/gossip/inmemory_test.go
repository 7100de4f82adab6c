package gossip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raj/lww/pkg/clock"
	"github.com/raj/lww/pkg/lww"
)

func newReplicas(n int) []*InMemory {
	clk := clock.NewManual(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Second)
	replicas := make([]*InMemory, n)
	for i := range replicas {
		replicas[i] = NewInMemory(nil, lww.New[string](clk))
	}
	return replicas
}

func TestInMemory_Propagates(t *testing.T) {
	ctx := context.Background()
	r := newReplicas(3)
	r[0].Connect(r[1], r[2])

	require.NoError(t, r[0].Add(ctx, "a"))
	require.NoError(t, r[0].Add(ctx, "b"))
	require.NoError(t, r[0].Remove(ctx, "a"))

	for _, replica := range r {
		require.True(t, replica.Set().Get().Equal(lww.NewValues("b")))
	}

	// r[1] and r[2] are only linked through r[0]
	require.NoError(t, r[1].Add(ctx, "c"))
	require.True(t, r[0].Set().Exists("c"))
	require.False(t, r[2].Set().Exists("c"))

	require.NoError(t, r[0].Sync(ctx))
	require.True(t, r[2].Set().Exists("c"))
	require.Equal(t, r[1].Set().State(), r[2].Set().State())
}

func TestInMemory_RemoveBeforeAddArrives(t *testing.T) {
	ctx := context.Background()
	r := newReplicas(2)

	require.NoError(t, r[0].Add(ctx, "x"))
	require.NoError(t, r[1].Remove(ctx, "x"))

	r[0].Connect(r[1])
	require.NoError(t, r[1].Sync(ctx))

	require.False(t, r[0].Set().Exists("x"))
	require.False(t, r[1].Set().Exists("x"))
}

func TestInMemory_Validation(t *testing.T) {
	r := newReplicas(1)
	require.ErrorIs(t, r[0].Add(context.Background(), ""), ErrEmptyValue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r[0].Connect(newReplicas(1)...)
	require.Error(t, r[0].Add(ctx, "x"))
	// the local mutation is kept
	require.True(t, r[0].Set().Exists("x"))
}
