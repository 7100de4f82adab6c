package consensus

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestHCLogger_ForwardsToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	hl := newHCLogger(logger, "raft")
	hl.Named("transport").Warn("failed to accept connection", "error", errors.New("boom"))
	hl.Debug("dropped below level")
	hl.Trace("dropped below level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "WARN", rec["level"])
	require.Equal(t, "failed to accept connection", rec["msg"])
	require.Equal(t, "raft", rec["component"])
	require.Equal(t, "raft.transport", rec["subsystem"])
	require.Equal(t, "boom", rec["error"])
}

func TestHCLogger_LevelFollowsSlog(t *testing.T) {
	quiet := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo}))
	require.False(t, newHCLogger(quiet, "raft").IsDebug())

	verbose := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	require.True(t, newHCLogger(verbose, "raft").IsDebug())
}

func TestSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug-4, slogLevel(hclog.Trace))
	require.Equal(t, slog.LevelDebug, slogLevel(hclog.Debug))
	require.Equal(t, slog.LevelInfo, slogLevel(hclog.Info))
	require.Equal(t, slog.LevelWarn, slogLevel(hclog.Warn))
	require.Equal(t, slog.LevelError, slogLevel(hclog.Error))
}
