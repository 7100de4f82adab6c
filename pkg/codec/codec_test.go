package codec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raj/lww/pkg/clock"
	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/types"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSnapshot_RoundTrip(t *testing.T) {
	clk := clock.NewManual(epoch, time.Second)
	s := lww.New[string](clk)
	_, err := s.Add("b", lww.Now())
	require.NoError(t, err)
	_, err = s.Add("a", lww.Now())
	require.NoError(t, err)
	_, err = s.Remove("b", lww.Now())
	require.NoError(t, err)

	snap := FromSet("node-1", s)
	require.Equal(t, "node-1", snap.NodeID)
	require.Equal(t, []types.ElementRecord{
		{Value: "a", Timestamps: []int64{epoch.Add(time.Second).UnixNano()}},
		{Value: "b", Timestamps: []int64{epoch.UnixNano()}},
	}, snap.Adds)
	require.Len(t, snap.Removes, 1)

	restored, err := lww.FromState(ToState(snap), clk)
	require.NoError(t, err)
	require.Equal(t, s.State(), restored.State())
	require.True(t, restored.Get().Equal(lww.NewValues("a")))
}

func TestToState_UnionsRepeatedRecords(t *testing.T) {
	st := ToState(types.StateSnapshot{
		Adds: []types.ElementRecord{
			{Value: "x", Timestamps: []int64{1}},
			{Value: "x", Timestamps: []int64{2}},
		},
	})
	require.Len(t, st.Adds["x"], 2)
	require.Empty(t, st.Removes)
}

func TestToState_EmptyHistoryIsRejectedByApply(t *testing.T) {
	st := ToState(types.StateSnapshot{
		Adds: []types.ElementRecord{{Value: "x"}},
	})

	err := lww.New[string](nil).Apply(st)
	require.ErrorIs(t, err, lww.ErrEmptyHistory)
}

func TestEncodeDecode(t *testing.T) {
	snap := types.StateSnapshot{NodeID: "n", Adds: []types.ElementRecord{{Value: "v", Timestamps: []int64{42}}}}

	t.Run("small payload stays plain", func(t *testing.T) {
		data, err := Encode(snap, 1<<20)
		require.NoError(t, err)
		require.JSONEq(t, `{"payload":{"nodeId":"n","adds":[{"value":"v","timestamps":[42]}],"removes":null}}`, string(data))

		var decoded types.StateSnapshot
		require.NoError(t, Decode(data, &decoded))
		require.Equal(t, snap, decoded)
	})

	t.Run("large payload is compressed", func(t *testing.T) {
		big := types.StateSnapshot{NodeID: "n"}
		for i := 0; i < 200; i++ {
			big.Adds = append(big.Adds, types.ElementRecord{
				Value:      strings.Repeat("v", 20),
				Timestamps: []int64{int64(i)},
			})
		}

		data, err := Encode(big, 64)
		require.NoError(t, err)

		var f map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &f))
		require.JSONEq(t, `"gzip"`, string(f["enc"]))

		var packed []byte
		require.NoError(t, json.Unmarshal(f["payload"], &packed))
		require.Equal(t, []byte{0x1f, 0x8b}, packed[:2])

		var decoded types.StateSnapshot
		require.NoError(t, Decode(data, &decoded))
		require.Equal(t, big, decoded)
	})

	t.Run("compression can be disabled", func(t *testing.T) {
		data, err := Encode(snap, NeverCompress)
		require.NoError(t, err)
		require.NotContains(t, string(data), `"enc"`)
	})

	t.Run("incompressible payload stays plain", func(t *testing.T) {
		data, err := Encode("x", 0)
		require.NoError(t, err)
		require.JSONEq(t, `{"payload":"x"}`, string(data))
	})
}

func TestDecode_Errors(t *testing.T) {
	var target types.StateSnapshot

	require.Error(t, Decode([]byte("not json"), &target))
	require.Error(t, Decode([]byte(`{}`), &target))
	require.ErrorIs(t, Decode([]byte(`{"enc":"zstd","payload":"AA=="}`), &target), ErrUnknownEncoding)
	require.Error(t, Decode([]byte(`{"enc":"gzip","payload":"AAAA"}`), &target))
	require.Error(t, Decode([]byte(`{"enc":"gzip","payload":{}}`), &target))
}

func TestBatch(t *testing.T) {
	msgs := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")}

	batches := Batch(msgs, 9)
	require.Equal(t, [][]byte{[]byte("aaaa\nbbbb"), []byte("cccc")}, batches)

	var unbatched [][]byte
	for _, b := range batches {
		unbatched = append(unbatched, Unbatch(b)...)
	}
	require.Equal(t, msgs, unbatched)

	// inputs are not aliased by the batches
	require.Equal(t, []byte("aaaa"), msgs[0])
	require.Nil(t, Batch(nil, 10))
	require.Nil(t, Unbatch(nil))
}
