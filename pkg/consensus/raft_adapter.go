package consensus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	raft "github.com/hashicorp/raft"
	"github.com/iotaledger/hive.go/ierrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raj/lww/pkg/codec"
	"github.com/raj/lww/pkg/metrics"
	"github.com/raj/lww/pkg/tracing"
	"github.com/raj/lww/pkg/types"
)

// RaftAdapter is a thin wrapper around hashicorp/raft to satisfy ConsensusClient.
type RaftAdapter struct {
	logger       *slog.Logger
	raft         *raft.Raft
	fsm          *FSM
	applyTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string][]func(any)
}

// raftLogEntry is a generic wrapper we serialize to the log.
type raftLogEntry struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRaftAdapter wraps r. fsm may be nil when r was built elsewhere; it is
// then attached by NewSingleNodeRaft.
func NewRaftAdapter(logger *slog.Logger, r *raft.Raft, fsm *FSM) *RaftAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &RaftAdapter{
		logger:       logger.With("component", "raft_adapter"),
		raft:         r,
		applyTimeout: 5 * time.Second,
		handlers:     make(map[string][]func(any)),
	}
	a.attach(fsm)
	return a
}

func (r *RaftAdapter) attach(fsm *FSM) {
	if fsm == nil {
		return
	}
	r.fsm = fsm
	fsm.adapter = r
}

// LeaderAddress returns the current leader address if known.
func (r *RaftAdapter) LeaderAddress() string {
	if r.raft == nil {
		metrics.RecordRaftOperation(metrics.RaftOpLeaderCheck, metrics.RaftResultNoRaft)
		return ""
	}
	leader, _ := r.raft.LeaderWithID()
	if leader == "" {
		metrics.RecordRaftOperation(metrics.RaftOpLeaderCheck, metrics.RaftResultNoLeader)
	} else {
		metrics.RecordRaftOperation(metrics.RaftOpLeaderCheck, metrics.RaftResultFound)
	}
	return string(leader)
}

// LeaderHTTPAddress returns the HTTP API address announced by the current
// leader, or "" when the leader or its address is unknown.
func (r *RaftAdapter) LeaderHTTPAddress() string {
	if r.raft == nil || r.fsm == nil {
		return ""
	}
	_, id := r.raft.LeaderWithID()
	if id == "" {
		return ""
	}
	addr, _ := r.fsm.MemberHTTPAddr(string(id))
	return addr
}

// NotLeader describes where writes rejected by this node should go.
func (r *RaftAdapter) NotLeader() *NotLeaderError {
	return &NotLeaderError{LeaderAddr: r.LeaderAddress(), LeaderHTTPAddr: r.LeaderHTTPAddress()}
}

// Announce records id's HTTP API address in the replicated member directory.
func (r *RaftAdapter) Announce(ctx context.Context, id, httpAddr string) error {
	if id == "" || httpAddr == "" {
		return ErrInvalidMember
	}
	return r.ProposeEvent(ctx, &types.MemberEvent{ID: id, HTTPAddr: httpAddr})
}

// IsLeader reports whether this node is leader.
func (r *RaftAdapter) IsLeader() bool {
	if r.raft == nil {
		metrics.RecordRaftOperation(metrics.RaftOpIsLeader, metrics.RaftResultNoRaft)
		return false
	}
	return r.raft.State() == raft.Leader
}

// StateSnapshot returns the full replica state as applied by this node.
func (r *RaftAdapter) StateSnapshot(nodeID string) types.StateSnapshot {
	if r.fsm == nil {
		return types.StateSnapshot{NodeID: nodeID}
	}
	return codec.FromSet(nodeID, r.fsm.Set())
}

// Raft returns the underlying *raft.Raft instance. Use for admin operations.
func (r *RaftAdapter) Raft() *raft.Raft { return r.raft }

// WaitForLeader blocks until a leader is known or ctx is done.
func (r *RaftAdapter) WaitForLeader(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.ObserveRaftOperationDuration(metrics.RaftOpWaitForLeader, time.Since(start).Seconds())
	}()
	if r.raft == nil {
		metrics.RecordRaftOperation(metrics.RaftOpWaitForLeader, metrics.RaftResultNoRaft)
		return ErrNoRaft
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr, _ := r.raft.LeaderWithID(); addr != "" {
			metrics.RecordRaftOperation(metrics.RaftOpWaitForLeader, metrics.RaftResultSuccess)
			return nil
		}
		select {
		case <-ctx.Done():
			metrics.RecordRaftOperation(metrics.RaftOpWaitForLeader, metrics.RaftResultTimeout)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AddVoter adds a server to the cluster. Must be called on the leader.
func (r *RaftAdapter) AddVoter(ctx context.Context, id string, addr string) error {
	start := time.Now()
	defer func() {
		metrics.ObserveRaftOperationDuration(metrics.RaftOpAddVoter, time.Since(start).Seconds())
	}()
	if r.raft == nil {
		metrics.RecordRaftOperation(metrics.RaftOpAddVoter, metrics.RaftResultNoRaft)
		return ErrNoRaft
	}
	if r.raft.State() != raft.Leader {
		metrics.RecordRaftOperation(metrics.RaftOpAddVoter, metrics.RaftResultNotLeader)
		return r.NotLeader()
	}
	f := r.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 5*time.Second)
	select {
	case <-ctx.Done():
		metrics.RecordRaftOperation(metrics.RaftOpAddVoter, metrics.RaftResultTimeout)
		return ctx.Err()
	case err := <-asyncErr(f):
		if err != nil {
			metrics.RecordRaftOperation(metrics.RaftOpAddVoter, "error")
		} else {
			metrics.RecordRaftOperation(metrics.RaftOpAddVoter, metrics.RaftResultSuccess)
			r.logger.Info("voter added", "id", id, "addr", addr)
		}
		return err
	}
}

func asyncErr(f raft.Future) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f.Error() }()
	return ch
}

func (r *RaftAdapter) ProposeEvent(ctx context.Context, event any) error {
	start := time.Now()
	defer func() {
		metrics.ObserveRaftOperationDuration(metrics.RaftOpPropose, time.Since(start).Seconds())
	}()

	tracer := otel.Tracer(tracing.TracerRaft)
	_, span := tracer.Start(ctx, tracing.SpanRaftPropose, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if r.raft == nil {
		metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultNoRaft)
		span.SetStatus(codes.Error, ErrNoRaft.Error())
		return ErrNoRaft
	}

	// Ensure we know the leader; if not this node, return NotLeaderError with hint.
	if addr, _ := r.raft.LeaderWithID(); addr == "" {
		metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultNoLeader)
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = r.WaitForLeader(wctx)
	}

	if r.raft.State() != raft.Leader {
		metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultNotLeader)
		span.SetStatus(codes.Error, "not leader")
		return r.NotLeader()
	}

	eventType := eventTypeConstant(event)
	if eventType == "" {
		metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultUnknownEvent)
		span.SetStatus(codes.Error, "unknown event type")
		return ierrors.Wrapf(ErrUnknownEvent, "%T", event)
	}
	span.SetAttributes(attribute.String("raft.event_type", eventType))

	entryBytes, err := encodeEntry(eventType, event)
	if err != nil {
		metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultMarshalEntryError)
		span.SetStatus(codes.Error, "marshal entry failed")
		return err
	}

	metrics.SetRaftLogSize(float64(len(entryBytes)))
	metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultProposing)

	f := r.raft.Apply(entryBytes, r.applyTimeout)
	done := make(chan error, 1)
	go func() {
		err := f.Error()
		if err == nil {
			if resp, ok := f.Response().(error); ok {
				err = resp
			}
		}
		if err != nil {
			metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultApplyError)
		} else {
			metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultSuccess)
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		metrics.RecordRaftOperation(metrics.RaftOpPropose, metrics.RaftResultTimeout)
		span.SetStatus(codes.Error, "timeout")
		return ctx.Err()
	case err := <-done:
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

func encodeEntry(eventType string, event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, ierrors.Wrap(err, "marshal payload")
	}
	return json.Marshal(&raftLogEntry{EventType: eventType, Payload: payload})
}

func (r *RaftAdapter) RegisterEventHandler(eventType string, handler func(event any)) error {
	if eventType == "" || handler == nil {
		return ierrors.New("eventType and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
	return nil
}

// dispatch invokes the handlers of an applied event. A panicking handler is
// logged and does not stop the FSM.
func (r *RaftAdapter) dispatch(eventType string, event any) {
	r.mu.RLock()
	handlers := r.handlers[eventType]
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("event handler panicked", "type", eventType, "panic", p)
				}
			}()
			h(event)
		}()
	}
}

func eventTypeConstant(event any) string {
	switch event.(type) {
	case *types.AddEvent:
		return types.EventTypeAdd
	case *types.RemoveEvent:
		return types.EventTypeRemove
	case *types.MemberEvent:
		return types.EventTypeMember
	default:
		return ""
	}
}
