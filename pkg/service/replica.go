package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raj/lww/pkg/codec"
	"github.com/raj/lww/pkg/consensus"
	"github.com/raj/lww/pkg/gossip"
	"github.com/raj/lww/pkg/lww"
	"github.com/raj/lww/pkg/metrics"
	"github.com/raj/lww/pkg/tracing"
	"github.com/raj/lww/pkg/types"
)

var (
	// ErrValueRequired is returned for operations on the empty value.
	ErrValueRequired = ierrors.New("value is required")

	// ErrStateMergeDisabled is returned by MergeState on raft-owned replicas.
	ErrStateMergeDisabled = ierrors.New("state merge disabled for this replica")
)

// ReplicaService orchestrates a local replica and its replicator.
type ReplicaService struct {
	logger     *slog.Logger
	set        *lww.Set[string]
	replicator gossip.Replicator
	opts       Options
}

// NewReplicaService serves set. A nil replicator keeps the replica local.
func NewReplicaService(logger *slog.Logger, set *lww.Set[string], replicator gossip.Replicator, opts Options) *ReplicaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplicaService{
		logger:     logger.With("component", "replica_service"),
		set:        set,
		replicator: replicator,
		opts:       opts,
	}
}

// Add records an add of value.
func (s *ReplicaService) Add(ctx context.Context, value string) error {
	return s.write(ctx, metrics.ServiceOpAdd, tracing.SpanServiceAdd, value, func(ctx context.Context) error {
		if s.replicator != nil {
			return s.replicator.Add(ctx, value)
		}
		_, err := s.set.Add(value, lww.Now())
		return err
	})
}

// Remove records a remove of value, whether or not it is present.
func (s *ReplicaService) Remove(ctx context.Context, value string) error {
	return s.write(ctx, metrics.ServiceOpRemove, tracing.SpanServiceRemove, value, func(ctx context.Context) error {
		if s.replicator != nil {
			return s.replicator.Remove(ctx, value)
		}
		_, err := s.set.Remove(value, lww.Now())
		return err
	})
}

func (s *ReplicaService) write(ctx context.Context, op, spanName, value string, fn func(context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.ObserveServiceOperationDuration(op, time.Since(start).Seconds())
	}()

	ctx, span := otel.Tracer(tracing.TracerService).Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("lww.value", value))

	if value == "" {
		metrics.RecordServiceOperation(op, metrics.ServiceResultInvalid)
		return ErrValueRequired
	}

	if err := s.withRetry(ctx, fn); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordServiceOperation(op, metrics.ServiceResultError)
		return err
	}

	if s.replicator != nil {
		metrics.RecordServiceOperation(op, metrics.ServiceResultReplicated)
	} else {
		metrics.RecordServiceOperation(op, metrics.ServiceResultLocalOnly)
	}
	s.observeLogs()
	return nil
}

// withRetry retries fn while a consensus replicator reports that this node
// is not the leader and the leader's HTTP address is not yet known. A known
// leader is returned to the caller at once so it can be redirected.
func (s *ReplicaService) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	backoff := s.opts.initialBackoff()
	for attempt := 0; attempt < s.opts.maxAttempts(); attempt++ {
		err := fn(ctx)
		ne, notLeader := consensus.IsNotLeader(err)
		if !notLeader {
			return err
		}

		metrics.IncrementServiceConsensusRedirects()
		if ne.LeaderHTTPAddr != "" {
			s.logger.Debug("redirecting to leader", "leader", ne.LeaderHTTPAddr)
			return err
		}
		s.logger.Info("leader http address unknown, retrying", "leader", ne.LeaderAddr, "attempt", attempt+1)
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}

	metrics.RecordServiceOperation("retry", metrics.ServiceResultRetryFailed)
	return lastErr
}

// Exists reports whether value is present now, or at *asOf when asOf is set.
func (s *ReplicaService) Exists(ctx context.Context, value string, asOf *time.Time) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveServiceOperationDuration(metrics.ServiceOpExists, time.Since(start).Seconds())
	}()

	if value == "" {
		metrics.RecordServiceOperation(metrics.ServiceOpExists, metrics.ServiceResultInvalid)
		return false, ErrValueRequired
	}

	if asOf != nil {
		metrics.RecordServiceOperation(metrics.ServiceOpExists, metrics.ServiceResultHistorical)
		return s.set.ExistsAt(value, *asOf), nil
	}

	metrics.RecordServiceOperation(metrics.ServiceOpExists, metrics.ServiceResultSuccess)
	return s.set.Exists(value), nil
}

// Values returns the present values in ascending order, now or at *asOf.
func (s *ReplicaService) Values(ctx context.Context, asOf *time.Time) []string {
	start := time.Now()
	defer func() {
		metrics.ObserveServiceOperationDuration(metrics.ServiceOpValues, time.Since(start).Seconds())
	}()

	var values lww.Values[string]
	if asOf != nil {
		values = s.set.GetAt(*asOf)
		metrics.RecordServiceOperation(metrics.ServiceOpValues, metrics.ServiceResultHistorical)
	} else {
		values = s.set.Get()
		metrics.SetMembers(float64(values.Len()))
		metrics.RecordServiceOperation(metrics.ServiceOpValues, metrics.ServiceResultSuccess)
	}

	out := values.Slice()
	slices.Sort(out)
	return out
}

// State exports the full replica state.
func (s *ReplicaService) State(ctx context.Context) types.StateSnapshot {
	metrics.RecordServiceOperation(metrics.ServiceOpState, metrics.ServiceResultSuccess)
	return codec.FromSet(s.opts.NodeID, s.set)
}

// MergeState unions a pushed state into the replica and, when a replicator
// is configured, pushes the result on to the peers.
func (s *ReplicaService) MergeState(ctx context.Context, snap types.StateSnapshot) error {
	start := time.Now()
	defer func() {
		metrics.ObserveServiceOperationDuration(metrics.ServiceOpMergeState, time.Since(start).Seconds())
	}()

	ctx, span := otel.Tracer(tracing.TracerService).Start(ctx, tracing.SpanServiceMergeState)
	defer span.End()
	span.SetAttributes(attribute.String("lww.from", snap.NodeID))

	if s.opts.DisableStateMerge {
		metrics.RecordServiceOperation(metrics.ServiceOpMergeState, metrics.ServiceResultInvalid)
		return ErrStateMergeDisabled
	}

	if err := s.set.Apply(codec.ToState(snap)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordServiceOperation(metrics.ServiceOpMergeState, metrics.ServiceResultInvalid)
		return err
	}
	metrics.RecordSetOperation(metrics.SetOpApplyState, metrics.SetResultSuccess)
	s.observeLogs()

	if s.replicator != nil {
		if err := s.replicator.Sync(ctx); err != nil {
			s.logger.Warn("push after merge failed", "error", err)
		}
	}

	metrics.RecordServiceOperation(metrics.ServiceOpMergeState, metrics.ServiceResultSuccess)
	return nil
}

func (s *ReplicaService) observeLogs() {
	adds, removes := s.set.Len()
	metrics.SetLogEntries(metrics.SetLogAdds, float64(adds))
	metrics.SetLogEntries(metrics.SetLogRemoves, float64(removes))
}
