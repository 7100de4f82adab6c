package memberlist

import (
	"encoding/hex"
	"log/slog"
	"time"

	hmemberlist "github.com/hashicorp/memberlist"
	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/codec"
)

// Config holds settings for the memberlist-based gossip layer.
type Config struct {
	NodeName       string
	BindAddr       string // host:port
	Seeds          []string
	RetransmitMult int
	GossipInterval time.Duration
	ProbeInterval  time.Duration
	PushPullPeriod time.Duration // full state anti-entropy interval
	KeyHex         string        // optional hex-encoded secret for keyring
	Compression    bool          // enable message compression
	MaxMessageSize int           // max message size before compression
	// MaxBroadcastSize bounds an encoded op broadcast. Larger ops carry only
	// their newest timestamp; push/pull delivers the rest.
	MaxBroadcastSize int
}

const (
	// DefaultMaxMessageSize is used when MaxMessageSize is unset.
	DefaultMaxMessageSize = 1024
	// DefaultMaxBroadcastSize leaves room in memberlist's default 1400 byte
	// UDP packet for the compound and ping headers.
	DefaultMaxBroadcastSize = 1024
)

// EffectiveMaxMessageSize returns the compression threshold for codec.Encode:
// MaxMessageSize or its default, or codec.NeverCompress when compression is
// disabled.
func (c Config) EffectiveMaxMessageSize() int {
	if !c.Compression {
		return codec.NeverCompress
	}
	if c.MaxMessageSize > 0 {
		return c.MaxMessageSize
	}
	return DefaultMaxMessageSize
}

// EffectiveMaxBroadcastSize returns MaxBroadcastSize or its default.
func (c Config) EffectiveMaxBroadcastSize() int {
	if c.MaxBroadcastSize > 0 {
		return c.MaxBroadcastSize
	}
	return DefaultMaxBroadcastSize
}

// LANConfig translates c into a hashicorp memberlist configuration based on
// DefaultLANConfig. Delegates are left unset.
func (c Config) LANConfig(logger *slog.Logger) (*hmemberlist.Config, error) {
	mlCfg := hmemberlist.DefaultLANConfig()
	if c.NodeName != "" {
		mlCfg.Name = c.NodeName
	}
	if c.BindAddr != "" {
		host, port, err := ParseAddr(c.BindAddr)
		if err != nil {
			return nil, ierrors.Wrap(err, "bind address")
		}
		mlCfg.BindAddr, mlCfg.BindPort = host, port
		mlCfg.AdvertisePort = port
	}
	if c.RetransmitMult > 0 {
		mlCfg.RetransmitMult = c.RetransmitMult
	}
	if c.GossipInterval > 0 {
		mlCfg.GossipInterval = c.GossipInterval
	}
	if c.ProbeInterval > 0 {
		mlCfg.ProbeInterval = c.ProbeInterval
	}
	if c.PushPullPeriod > 0 {
		mlCfg.PushPullInterval = c.PushPullPeriod
	}
	if c.KeyHex != "" {
		b, err := hex.DecodeString(c.KeyHex)
		if err != nil {
			return nil, ierrors.Wrap(err, "invalid KeyHex")
		}
		kr, err := hmemberlist.NewKeyring([][]byte{b}, b)
		if err != nil {
			return nil, ierrors.Wrap(err, "create keyring")
		}
		mlCfg.Keyring = kr
	}
	if logger != nil {
		mlCfg.LogOutput = nil
		mlCfg.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
	}

	return mlCfg, nil
}
