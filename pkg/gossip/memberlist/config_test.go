package memberlist

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raj/lww/pkg/codec"
)

func TestParseAddr(t *testing.T) {
	host, port, err := ParseAddr("127.0.0.1:7946")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, 7946, port)

	host, port, err = ParseAddr("[::1]:0")
	require.NoError(t, err)
	require.Equal(t, "::1", host)
	require.Zero(t, port)

	for _, addr := range []string{"127.0.0.1", "127.0.0.1:http", "127.0.0.1:70000", ":-1", ""} {
		_, _, err := ParseAddr(addr)
		require.Error(t, err, addr)
	}
}

func TestLANConfig(t *testing.T) {
	cfg := Config{
		NodeName:       "n1",
		BindAddr:       "127.0.0.1:17946",
		RetransmitMult: 5,
		GossipInterval: 50 * time.Millisecond,
		PushPullPeriod: 2 * time.Second,
		KeyHex:         "000102030405060708090a0b0c0d0e0f",
	}

	mlCfg, err := cfg.LANConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "n1", mlCfg.Name)
	require.Equal(t, "127.0.0.1", mlCfg.BindAddr)
	require.Equal(t, 17946, mlCfg.BindPort)
	require.Equal(t, 5, mlCfg.RetransmitMult)
	require.Equal(t, 50*time.Millisecond, mlCfg.GossipInterval)
	require.Equal(t, 2*time.Second, mlCfg.PushPullInterval)
	require.NotNil(t, mlCfg.Keyring)
}

func TestLANConfig_InvalidBindAddr(t *testing.T) {
	_, err := Config{BindAddr: "localhost:gossip"}.LANConfig(nil)
	require.Error(t, err)
}

func TestLANConfig_InvalidKey(t *testing.T) {
	_, err := Config{KeyHex: "zz"}.LANConfig(nil)
	require.Error(t, err)

	_, err = Config{KeyHex: "0011"}.LANConfig(nil)
	require.Error(t, err)
}

func TestEffectiveMaxMessageSize(t *testing.T) {
	require.Equal(t, DefaultMaxMessageSize, Config{Compression: true}.EffectiveMaxMessageSize())
	require.Equal(t, 64, Config{Compression: true, MaxMessageSize: 64}.EffectiveMaxMessageSize())
	require.Equal(t, codec.NeverCompress, Config{MaxMessageSize: 64}.EffectiveMaxMessageSize())

	require.Equal(t, DefaultMaxBroadcastSize, Config{}.EffectiveMaxBroadcastSize())
	require.Equal(t, 512, Config{MaxBroadcastSize: 512}.EffectiveMaxBroadcastSize())
}

func TestBroadcast(t *testing.T) {
	b := &Broadcast{Key: "add:x", Msg: []byte("payload")}
	require.Equal(t, []byte("payload"), b.Message())
	require.True(t, b.Invalidates(&Broadcast{Key: "add:x"}))
	require.False(t, b.Invalidates(&Broadcast{Key: "remove:x"}))
	require.False(t, (&Broadcast{}).Invalidates(&Broadcast{}))
}

func TestQueue_KeyedBroadcastsReplaceEachOther(t *testing.T) {
	q := NewQueue(func() int { return 3 }, 0)
	for i := 0; i < 100; i++ {
		q.QueueBroadcast(&Broadcast{Key: "add:hot", Msg: []byte(fmt.Sprintf("v%d", i))})
	}
	q.QueueBroadcast(&Broadcast{Key: "add:cold", Msg: []byte("c")})
	require.Equal(t, 2, q.NumQueued())

	msgs := q.GetBroadcasts(0, 1024)
	require.ElementsMatch(t, [][]byte{[]byte("v99"), []byte("c")}, msgs)
}
