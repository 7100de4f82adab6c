package consensus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	raft "github.com/hashicorp/raft"
	"github.com/iotaledger/hive.go/ierrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raj/lww/pkg/codec"
	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/metrics"
	"github.com/raj/lww/pkg/tracing"
	"github.com/raj/lww/pkg/types"
)

// snapshotCompressAbove is the snapshot size above which it is gzipped.
const snapshotCompressAbove = 1 << 20

// FSM implements raft.FSM over a replica set. It decodes log entries to
// typed events, applies them and dispatches them to registered handlers.
// Alongside the set it keeps the member directory, mapping raft server ids
// to their HTTP API addresses.
type FSM struct {
	logger  *slog.Logger
	nodeID  string
	set     *lww.Set[string]
	adapter *RaftAdapter

	membersMu sync.RWMutex
	members   map[string]string
}

// fsmSnapshot is what a raft snapshot persists.
type fsmSnapshot struct {
	State   types.StateSnapshot `json:"state"`
	Members map[string]string   `json:"members,omitempty"`
}

// NewFSM returns an FSM that applies committed events to set.
func NewFSM(logger *slog.Logger, nodeID string, set *lww.Set[string]) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{
		logger:  logger.With("component", "raft_fsm"),
		nodeID:  nodeID,
		set:     set,
		members: make(map[string]string),
	}
}

// Set returns the replica the FSM applies to.
func (f *FSM) Set() *lww.Set[string] { return f.set }

// MemberHTTPAddr returns the HTTP address announced for server id.
func (f *FSM) MemberHTTPAddr(id string) (string, bool) {
	f.membersMu.RLock()
	defer f.membersMu.RUnlock()

	addr, ok := f.members[id]
	return addr, ok
}

func (f *FSM) recordMember(ev types.MemberEvent) error {
	if ev.ID == "" || ev.HTTPAddr == "" {
		return ierrors.Wrapf(ErrInvalidMember, "%+v", ev)
	}

	f.membersMu.Lock()
	defer f.membersMu.Unlock()
	f.members[ev.ID] = ev.HTTPAddr
	return nil
}

func (f *FSM) memberSnapshot() map[string]string {
	f.membersMu.RLock()
	defer f.membersMu.RUnlock()
	return maps.Clone(f.members)
}

// Apply returns nil on success and an error otherwise. raft hands the
// result back to the proposer through ApplyFuture.Response.
func (f *FSM) Apply(log *raft.Log) any {
	start := time.Now()
	defer func() {
		metrics.ObserveRaftOperationDuration(metrics.RaftOpApply, time.Since(start).Seconds())
	}()

	_, span := otel.Tracer(tracing.TracerConsensus).Start(context.Background(), tracing.SpanRaftApply)
	defer span.End()
	span.SetAttributes(attribute.Int64("raft.index", int64(log.Index)))

	var entry raftLogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		metrics.RecordRaftOperation(metrics.RaftOpApply, metrics.RaftResultUnmarshalError)
		span.SetStatus(codes.Error, err.Error())
		return ierrors.Wrapf(err, "decode log entry %d", log.Index)
	}

	var (
		event any
		setOp string
		err   error
	)
	switch entry.EventType {
	case types.EventTypeAdd:
		setOp = metrics.SetOpAdd
		var ev types.AddEvent
		if err = json.Unmarshal(entry.Payload, &ev); err == nil {
			_, err = f.set.Add(ev.Value, lww.WithHistory(types.ToTimes(ev.Timestamps)...))
			event = &ev
		}
	case types.EventTypeRemove:
		setOp = metrics.SetOpRemove
		var ev types.RemoveEvent
		if err = json.Unmarshal(entry.Payload, &ev); err == nil {
			_, err = f.set.Remove(ev.Value, lww.WithHistory(types.ToTimes(ev.Timestamps)...))
			event = &ev
		}
	case types.EventTypeMember:
		var ev types.MemberEvent
		if err = json.Unmarshal(entry.Payload, &ev); err == nil {
			err = f.recordMember(ev)
			event = &ev
		}
	default:
		err = ierrors.Wrapf(ErrUnknownEvent, "%q", entry.EventType)
	}
	if err != nil {
		metrics.RecordRaftOperation(metrics.RaftOpApply, metrics.RaftResultApplyError)
		if setOp != "" {
			metrics.RecordSetOperation(setOp, metrics.SetResultError)
		}
		span.SetStatus(codes.Error, err.Error())
		f.logger.Warn("log entry rejected", "index", log.Index, "type", entry.EventType, "error", err)
		return err
	}

	metrics.RecordRaftOperation(metrics.RaftOpApply, metrics.RaftResultSuccess)
	if setOp != "" {
		metrics.RecordSetOperation(setOp, metrics.SetResultSuccess)
	}
	if f.adapter != nil {
		f.adapter.dispatch(entry.EventType, event)
	}
	return nil
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	data, err := codec.Encode(fsmSnapshot{
		State:   codec.FromSet(f.nodeID, f.set),
		Members: f.memberSnapshot(),
	}, snapshotCompressAbove)
	if err != nil {
		metrics.RecordRaftSnapshot(metrics.RaftSnapshotCreate, metrics.RaftSnapshotError)
		return nil, err
	}
	metrics.RecordRaftSnapshot(metrics.RaftSnapshotCreate, metrics.RaftSnapshotSuccess)
	return &snapshot{data: data}, nil
}

// Restore unions the snapshot into the replica and the member directory.
// Both only grow along the raft log, so the union equals the snapshot's state.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		metrics.RecordRaftSnapshot(metrics.RaftSnapshotRestore, metrics.RaftSnapshotError)
		return ierrors.Wrap(err, "read snapshot")
	}
	var snap fsmSnapshot
	if err := codec.Decode(data, &snap); err != nil {
		metrics.RecordRaftSnapshot(metrics.RaftSnapshotRestore, metrics.RaftSnapshotError)
		return ierrors.Wrap(err, "decode snapshot")
	}
	if err := f.set.Apply(codec.ToState(snap.State)); err != nil {
		metrics.RecordRaftSnapshot(metrics.RaftSnapshotRestore, metrics.RaftSnapshotError)
		return ierrors.Wrap(err, "apply snapshot")
	}

	f.membersMu.Lock()
	maps.Copy(f.members, snap.Members)
	f.membersMu.Unlock()

	metrics.RecordRaftSnapshot(metrics.RaftSnapshotRestore, metrics.RaftSnapshotSuccess)
	return nil
}

type snapshot struct{ data []byte }

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		sink.Cancel()
		metrics.RecordRaftSnapshot(metrics.RaftSnapshotPersist, metrics.RaftSnapshotError)
		return err
	}
	metrics.RecordRaftSnapshot(metrics.RaftSnapshotPersist, metrics.RaftSnapshotSuccess)
	return sink.Close()
}

func (s *snapshot) Release() {}
