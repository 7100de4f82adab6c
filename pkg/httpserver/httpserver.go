package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/iotaledger/hive.go/ierrors"

	"github.com/raj/lww/pkg/consensus"
	"github.com/raj/lww/pkg/metrics"
	"github.com/raj/lww/pkg/service"
	"github.com/raj/lww/pkg/types"
)

// Replica is the part of service.ReplicaService the API serves.
type Replica interface {
	Add(ctx context.Context, value string) error
	Remove(ctx context.Context, value string) error
	Exists(ctx context.Context, value string, asOf *time.Time) (bool, error)
	Values(ctx context.Context, asOf *time.Time) []string
	State(ctx context.Context) types.StateSnapshot
	MergeState(ctx context.Context, snap types.StateSnapshot) error
}

type joinReq struct {
	ID       string `json:"id"`
	Addr     string `json:"addr"`
	HTTPAddr string `json:"http,omitempty"`
}

type elementResp struct {
	Value  string     `json:"value"`
	Exists *bool      `json:"exists,omitempty"`
	Status string     `json:"status,omitempty"`
	AsOf   *time.Time `json:"asOf,omitempty"`
}

type valuesResp struct {
	Values []string   `json:"values"`
	AsOf   *time.Time `json:"asOf,omitempty"`
}

// NewHandler builds the API mux. cc may be nil when the replica is not
// backed by raft.
func NewHandler(logger *slog.Logger, replica Replica, cc consensus.ConsensusClient) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpserver")
	adapter, _ := cc.(*consensus.RaftAdapter)

	mux := http.NewServeMux()
	mux.Handle("/healthz", instrumentFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	mux.Handle("/readyz", instrumentFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if adapter != nil {
			leader := adapter.LeaderAddress()
			if leader == "" {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("leader: unknown"))
				return
			}
			body := "leader: " + leader
			if httpAddr := adapter.LeaderHTTPAddress(); httpAddr != "" {
				body += " http: " + httpAddr
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}))
	mux.Handle("/metrics", instrument("/metrics", metrics.Handler()))

	mux.Handle("/v1/elements/", instrumentFunc("/v1/elements/{value}", func(w http.ResponseWriter, r *http.Request) {
		value := strings.TrimPrefix(r.URL.Path, "/v1/elements/")
		if value == "" {
			writeError(w, http.StatusBadRequest, "value required")
			return
		}

		switch r.Method {
		case http.MethodPut, http.MethodDelete:
			op, status := replica.Add, "added"
			if r.Method == http.MethodDelete {
				op, status = replica.Remove, "removed"
			}
			cctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := op(cctx, value); err != nil {
				writeWriteError(w, r, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, elementResp{Value: value, Status: status})
		case http.MethodGet:
			asOf, ok := parseAsOf(w, r)
			if !ok {
				return
			}
			exists, err := replica.Exists(r.Context(), value, asOf)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, elementResp{Value: value, Exists: &exists, AsOf: asOf})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/v1/elements", instrumentFunc("/v1/elements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		asOf, ok := parseAsOf(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, valuesResp{Values: replica.Values(r.Context(), asOf), AsOf: asOf})
	}))

	mux.Handle("/v1/state", instrumentFunc("/v1/state", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, replica.State(r.Context()))
		case http.MethodPost:
			var snap types.StateSnapshot
			if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
				writeError(w, http.StatusBadRequest, "invalid json")
				return
			}
			if err := replica.MergeState(r.Context(), snap); err != nil {
				if ierrors.Is(err, service.ErrStateMergeDisabled) {
					writeError(w, http.StatusConflict, err.Error())
					return
				}
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"status": "merged"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/raft/join", instrumentFunc("/raft/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if adapter == nil {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		var req joinReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.Addr == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		jctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := adapter.AddVoter(jctx, req.ID, req.Addr); err != nil {
			writeWriteError(w, r, logger, err)
			return
		}
		if req.HTTPAddr != "" {
			if err := adapter.Announce(jctx, req.ID, req.HTTPAddr); err != nil {
				writeWriteError(w, r, logger, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))

	mux.Handle("/raft/snapshot", instrumentFunc("/raft/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if adapter == nil {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		if !adapter.IsLeader() {
			writeWriteError(w, r, logger, adapter.NotLeader())
			return
		}
		if err := adapter.Raft().Snapshot().Error(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))

	return mux
}

// Start launches an HTTP server for handler on addr, like "127.0.0.1:18080".
// It returns a shutdown function to stop the server (best-effort).
func Start(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()
	return func(shutdownCtx context.Context) error { return srv.Shutdown(shutdownCtx) }
}

func parseAsOf(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "asOf must be RFC3339")
		return nil, false
	}
	return &t, true
}

// writeWriteError maps a failed mutation to a status code. Writes that land
// on a raft follower are redirected to the leader's HTTP API; while that
// address is unknown the client gets 503 and should retry.
func writeWriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if ne, notLeader := consensus.IsNotLeader(err); notLeader {
		if ne.LeaderHTTPAddr == "" {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		w.Header().Set("Location", fmt.Sprintf("http://%s%s", ne.LeaderHTTPAddr, r.URL.RequestURI()))
		writeError(w, http.StatusTemporaryRedirect, err.Error())
		return
	}
	if ierrors.Is(err, service.ErrValueRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Error("write failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
