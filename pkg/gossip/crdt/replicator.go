// Package crdt replicates an LWW element set over a memberlist cluster.
//
// Local mutations are applied to the replica and broadcast as op messages
// carrying the element's timestamp history, or only its newest timestamp when
// the history outgrows a UDP packet. A newer op replaces a queued older one
// for the same element. Received ops are unioned in with lww.WithHistory, so
// duplicated or reordered delivery is harmless.
// Memberlist push/pull exchanges full snapshots for anti-entropy.
package crdt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	hmemberlist "github.com/hashicorp/memberlist"
	"github.com/iotaledger/hive.go/ierrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raj/lww/pkg/codec"
	"github.com/raj/lww/pkg/gossip"
	"github.com/raj/lww/pkg/gossip/memberlist"
	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/metrics"
	"github.com/raj/lww/pkg/tracing"
	"github.com/raj/lww/pkg/types"
)

// ErrNotStarted is returned by Sync before the memberlist node is running.
var ErrNotStarted = ierrors.New("memberlist not started")

var _ gossip.Replicator = (*Replicator)(nil)

// Replicator is the memberlist-backed gossip.Replicator.
type Replicator struct {
	logger  *slog.Logger
	nodeID  string
	set     *lww.Set[string]
	maxSize int

	maxBroadcast int

	members atomic.Int64
	ml      *hmemberlist.Memberlist
	queue   *hmemberlist.TransmitLimitedQueue
}

// New starts a memberlist node that replicates set. The returned function
// leaves the cluster and shuts the node down.
func New(logger *slog.Logger, cfg memberlist.Config, set *lww.Set[string]) (*Replicator, func() error, error) {
	r := newReplicator(logger, cfg, set)

	ml, err := memberlist.Create(logger, cfg, &delegate{r: r})
	if err != nil {
		return nil, nil, err
	}
	r.ml = ml

	shutdown := func() error {
		if err := ml.Leave(5 * time.Second); err != nil {
			r.logger.Warn("leave failed", "error", err)
		}
		return ml.Shutdown()
	}
	return r, shutdown, nil
}

func newReplicator(logger *slog.Logger, cfg memberlist.Config, set *lww.Set[string]) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}

	nodeID := cfg.NodeName
	if nodeID == "" {
		nodeID = "unknown"
	}

	r := &Replicator{
		logger:  logger.With("component", "gossip_crdt"),
		nodeID:  nodeID,
		set:     set,
		maxSize: cfg.EffectiveMaxMessageSize(),

		maxBroadcast: cfg.EffectiveMaxBroadcastSize(),
	}
	r.queue = memberlist.NewQueue(r.numNodes, cfg.RetransmitMult)

	return r
}

func (r *Replicator) numNodes() int {
	if n := int(r.members.Load()); n > 0 {
		return n
	}
	return 1
}

func (r *Replicator) Add(ctx context.Context, value string) error {
	return r.mutate(ctx, msgAdd, value)
}

func (r *Replicator) Remove(ctx context.Context, value string) error {
	return r.mutate(ctx, msgRemove, value)
}

func (r *Replicator) mutate(ctx context.Context, kind messageType, value string) error {
	start := time.Now()
	defer func() {
		metrics.ObserveGossipOperationDuration(string(kind), time.Since(start).Seconds())
	}()

	_, span := otel.Tracer(tracing.TracerGossip).Start(ctx, tracing.SpanGossipBroadcast)
	defer span.End()
	span.SetAttributes(attribute.String("gossip.op", string(kind)), attribute.String("lww.value", value))

	if value == "" {
		metrics.RecordGossipMessage(string(kind), "invalid")
		return gossip.ErrEmptyValue
	}

	var (
		history []time.Time
		err     error
	)
	switch kind {
	case msgAdd:
		if _, err = r.set.Add(value, lww.Now()); err == nil {
			history, _ = r.set.AddHistory(value)
		}
	default:
		if _, err = r.set.Remove(value, lww.Now()); err == nil {
			history, _ = r.set.RemoveHistory(value)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	r.broadcast(wireMsg{Type: kind, NodeID: r.nodeID, Value: value, Timestamps: types.FromTimes(history)})
	return nil
}

// Sync sends the full local state to every other member over TCP.
func (r *Replicator) Sync(ctx context.Context) error {
	if r.ml == nil {
		return ErrNotStarted
	}

	start := time.Now()
	defer func() {
		metrics.ObserveGossipOperationDuration(metrics.GossipOpPush, time.Since(start).Seconds())
	}()

	payload, err := encodeState(r.nodeID, r.set, r.maxSize)
	if err != nil {
		return ierrors.Wrap(err, "encode state")
	}

	var errs []error
	for _, node := range r.ml.Members() {
		if node.Name == r.ml.LocalNode().Name {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ierrors.Wrap(err, "sync interrupted")
		}
		if err := r.ml.SendReliable(node, payload); err != nil {
			metrics.RecordGossipMessage(metrics.GossipMsgState, metrics.GossipStatusError)
			errs = append(errs, ierrors.Wrapf(err, "push to %s", node.Name))
			continue
		}
		metrics.RecordGossipTraffic(metrics.GossipMsgState, metrics.GossipDirectionOut)
	}

	return ierrors.Join(errs...)
}

// Members returns the number of live cluster members, including this node.
func (r *Replicator) Members() int {
	return int(r.members.Load())
}

func (r *Replicator) apply(msg wireMsg) error {
	switch msg.Type {
	case msgAdd, msgRemove:
		if len(msg.Timestamps) == 0 {
			return ierrors.Wrapf(lww.ErrEmptyHistory, "%s %q from %s", msg.Type, msg.Value, msg.NodeID)
		}
		stamp := lww.WithHistory(types.ToTimes(msg.Timestamps)...)
		if msg.Type == msgAdd {
			_, err := r.set.Add(msg.Value, stamp)
			return err
		}
		_, err := r.set.Remove(msg.Value, stamp)
		return err
	case msgState:
		return mergeState(r.set, msg.State)
	default:
		return ierrors.Wrapf(ErrUnexpectedMessage, "type %q", msg.Type)
	}
}

// broadcast queues msg under its type and value, replacing an older queued
// op for the same element. An op over the broadcast budget is cut down to its
// newest timestamp, which alone decides presence; push/pull delivers the rest
// of the history.
func (r *Replicator) broadcast(msg wireMsg) {
	b, err := codec.Encode(msg, r.maxSize)
	if err == nil && len(b) > r.maxBroadcast && len(msg.Timestamps) > 1 {
		msg.Timestamps = msg.Timestamps[len(msg.Timestamps)-1:]
		b, err = codec.Encode(msg, r.maxSize)
		metrics.RecordGossipMessage(string(msg.Type), metrics.GossipStatusTrimmed)
	}
	if err != nil {
		metrics.RecordGossipMessage(metrics.GossipOpBroadcast, "marshal_error")
		r.logger.Error("encode broadcast failed", "error", err)
		return
	}

	metrics.ObserveGossipMessageSize(string(msg.Type), float64(len(b)))
	if len(b) > r.maxBroadcast {
		metrics.RecordGossipMessage(string(msg.Type), metrics.GossipStatusDropped)
		r.logger.Debug("op exceeds broadcast budget, left to push/pull", "value", msg.Value, "size", len(b))
		return
	}

	r.queue.QueueBroadcast(&memberlist.Broadcast{Key: string(msg.Type) + ":" + msg.Value, Msg: b})
	metrics.RecordGossipMessage(string(msg.Type), metrics.GossipStatusQueued)
}

// delegate wires memberlist callbacks to the replicator.
type delegate struct{ r *Replicator }

func (d *delegate) NodeMeta(limit int) []byte { return nil }

func (d *delegate) NotifyMsg(b []byte) {
	metrics.ObserveGossipMessageSize(metrics.GossipStatusReceived, float64(len(b)))

	parts := codec.Unbatch(b)
	if len(parts) > 1 {
		metrics.RecordGossipTraffic(metrics.GossipMsgBatch, metrics.GossipDirectionIn)
	}
	for _, part := range parts {
		d.notify(part)
	}
}

func (d *delegate) notify(b []byte) {
	var msg wireMsg
	if err := codec.Decode(b, &msg); err != nil {
		metrics.RecordGossipMessage(metrics.GossipStatusReceived, metrics.GossipStatusError)
		d.r.logger.Warn("undecodable gossip message", "error", err)
		return
	}
	metrics.RecordGossipTraffic(string(msg.Type), metrics.GossipDirectionIn)

	if err := d.r.apply(msg); err != nil {
		metrics.RecordGossipMessage(string(msg.Type), metrics.GossipStatusDropped)
		d.r.logger.Warn("gossip message rejected", "type", msg.Type, "from", msg.NodeID, "error", err)
		return
	}
	metrics.RecordGossipMessage(string(msg.Type), metrics.GossipStatusApplied)
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	broadcasts := d.r.queue.GetBroadcasts(overhead, limit)
	for range broadcasts {
		metrics.RecordGossipTraffic(metrics.GossipMsgOp, metrics.GossipDirectionOut)
	}
	if len(broadcasts) < 2 {
		return broadcasts
	}

	// newline-joined ops save the per-message compound overhead
	batches := codec.Batch(broadcasts, limit-overhead)
	for range batches {
		metrics.RecordGossipTraffic(metrics.GossipMsgBatch, metrics.GossipDirectionOut)
	}
	return batches
}

func (d *delegate) LocalState(join bool) []byte {
	start := time.Now()
	defer func() {
		metrics.ObserveGossipOperationDuration(metrics.GossipOpLocalState, time.Since(start).Seconds())
	}()

	b, err := encodeState(d.r.nodeID, d.r.set, d.r.maxSize)
	if err != nil {
		metrics.RecordGossipMessage(metrics.GossipOpLocalState, "marshal_error")
		d.r.logger.Error("encode local state failed", "error", err)
		return nil
	}

	metrics.ObserveGossipMessageSize(metrics.GossipOpLocalState, float64(len(b)))
	return b
}

func (d *delegate) MergeRemoteState(buf []byte, join bool) {
	_, span := otel.Tracer(tracing.TracerGossip).Start(context.Background(), tracing.SpanGossipMerge)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ObserveGossipOperationDuration(metrics.GossipOpMergeRemote, time.Since(start).Seconds())
	}()

	if len(buf) == 0 {
		return
	}

	var msg wireMsg
	if err := codec.Decode(buf, &msg); err != nil || msg.Type != msgState {
		metrics.RecordGossipMessage(metrics.GossipOpMergeRemote, metrics.GossipStatusError)
		span.SetStatus(codes.Error, "undecodable state")
		return
	}
	span.SetAttributes(attribute.String("gossip.from", msg.NodeID), attribute.Bool("gossip.join", join))

	if err := mergeState(d.r.set, msg.State); err != nil {
		metrics.RecordGossipMessage(metrics.GossipOpMergeRemote, metrics.GossipStatusDropped)
		span.SetStatus(codes.Error, err.Error())
		d.r.logger.Warn("remote state rejected", "from", msg.NodeID, "error", err)
		return
	}
	metrics.RecordGossipMessage(metrics.GossipOpMergeRemote, metrics.GossipStatusApplied)
}

func (d *delegate) NotifyJoin(n *hmemberlist.Node) {
	metrics.RecordGossipMessage("member", "join")
	metrics.SetGossipMembers(float64(d.r.members.Add(1)))
	d.r.logger.Info("member joined", "node", n.Name, "addr", n.Address())
}

func (d *delegate) NotifyLeave(n *hmemberlist.Node) {
	metrics.RecordGossipMessage("member", "leave")
	metrics.SetGossipMembers(float64(d.r.members.Add(-1)))
	d.r.logger.Info("member left", "node", n.Name)
}

func (d *delegate) NotifyUpdate(n *hmemberlist.Node) {
	metrics.RecordGossipMessage("member", "update")
}
