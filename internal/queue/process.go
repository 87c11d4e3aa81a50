package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/diarygraph/internal/storage"
	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/graph"
	"github.com/OFFIS-RIT/diarygraph/pkg/leaselock"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"
)

// QueueSegmentMsg asks a worker to merge one segment for a user. The segment
// is either inline or stored under SegmentKey.
type QueueSegmentMsg struct {
	Message       string          `json:"message"`
	UserID        string          `json:"user_id"`
	CorrelationID string          `json:"correlation_id"`
	SegmentKey    string          `json:"segment_key,omitempty"`
	Segment       *common.Segment `json:"segment,omitempty"`
}

// Locker serializes merges of one user across workers.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// StoreFactory returns the global store of one user.
type StoreFactory func(userID string) (store.GlobalStore, error)

type Processor struct {
	objects         storage.ObjectAPI
	stores          StoreFactory
	locker          Locker
	graph           *graph.GraphClient
	discoverer      ai.EdgeDiscoverer
	persistAttempts int
	leaseTTL        time.Duration
}

type NewProcessorParams struct {
	Objects storage.ObjectAPI
	Stores  StoreFactory
	Locker  Locker
	Graph   *graph.GraphClient
	// Discoverer is optional; without it only rule edges are built.
	Discoverer ai.EdgeDiscoverer
	// PersistAttempts bounds in-process retries of a failed persist phase.
	PersistAttempts int
	LeaseTTL        time.Duration
}

func NewProcessor(params NewProcessorParams) *Processor {
	attempts := params.PersistAttempts
	if attempts <= 0 {
		attempts = 3
	}
	ttl := params.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Processor{
		objects:         params.Objects,
		stores:          params.Stores,
		locker:          params.Locker,
		graph:           params.Graph,
		discoverer:      params.Discoverer,
		persistAttempts: attempts,
		leaseTTL:        ttl,
	}
}

// ErrInvalidMessage marks messages that cannot succeed on redelivery.
var ErrInvalidMessage = errors.New("invalid segment message")

// ProcessSegmentMessage runs the local relationship pass and the global merge
// for one queued segment. Edge building happens outside the user's lease;
// resolving, remapping and persisting happen under it.
//
// With an object store the resolved segment is checkpointed before it is
// persisted, and a redelivered message resumes from that checkpoint.
func (p *Processor) ProcessSegmentMessage(ctx context.Context, body []byte) error {
	var data QueueSegmentMsg
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("%w: failed to decode: %w", ErrInvalidMessage, err)
	}
	if data.UserID == "" {
		return fmt.Errorf("%w: no user id", ErrInvalidMessage)
	}

	segment, err := p.loadSegment(ctx, &data)
	if err != nil {
		return err
	}
	if err := segment.AssignMissingIDs(); err != nil {
		return err
	}
	segment.ScopeIDs()
	if err := segment.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	resumed := false
	if p.objects != nil {
		checkpoint, err := storage.GetSegment(ctx, p.objects, storage.CheckpointKey(data.UserID, segment.ID))
		switch {
		case err == nil:
			segment = checkpoint
			resumed = true
		case !errors.Is(err, storage.ErrObjectNotFound):
			return err
		}
	}

	globalStore, err := p.stores(data.UserID)
	if err != nil {
		return err
	}

	logger.Info("[Queue][Segment] Processing segment", "user_id", data.UserID, "segment_id", segment.ID, "correlation_id", data.CorrelationID, "resumed", resumed)

	if !resumed {
		p.graph.BuildLocalEdges(ctx, segment, p.discoverer)
	}

	var opts []graph.MergeOption
	if p.objects != nil {
		opts = append(opts, graph.WithCheckpoint(func(ctx context.Context, seg *common.Segment) error {
			return storage.PutCheckpoint(ctx, p.objects, data.UserID, seg)
		}))
	}

	var res *graph.MergeResult
	err = p.locker.WithLease(ctx, leaselock.MergeKey(data.UserID), leaselock.Options{
		TTL:          p.leaseTTL,
		Wait:         true,
		WaitInterval: 500 * time.Millisecond,
		WaitJitter:   250 * time.Millisecond,
	}, func(ctx context.Context) error {
		var err error
		res, err = p.merge(ctx, segment, globalStore, opts...)
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("[Queue][Segment] Segment merged", "segment_id", segment.ID, "merged", res.Merged, "new", res.New, "skipped", res.Skipped)

	if p.objects != nil {
		keys := []string{storage.CheckpointKey(data.UserID, segment.ID)}
		if data.SegmentKey != "" {
			keys = append(keys, data.SegmentKey)
		}
		for _, key := range keys {
			if err := storage.DeleteFile(ctx, p.objects, key); err != nil {
				logger.Warn("[Queue][Segment] Failed to delete segment payload", "key", key, "err", err)
			}
		}
	}
	return nil
}

// merge runs the merge again on the modified segment while only the final
// persist fails.
func (p *Processor) merge(ctx context.Context, segment *common.Segment, globalStore store.GlobalStore, opts ...graph.MergeOption) (*graph.MergeResult, error) {
	var lastErr error
	for attempt := range p.persistAttempts {
		res, err := p.graph.MergeSegmentIntoGlobal(ctx, segment, globalStore, opts...)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, graph.ErrPersistSegment) || !res.Retryable {
			return nil, err
		}
		logger.Warn("[Queue][Segment] Persist failed, retrying", "segment_id", segment.ID, "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}

func (p *Processor) loadSegment(ctx context.Context, data *QueueSegmentMsg) (*common.Segment, error) {
	if data.Segment != nil {
		return data.Segment, nil
	}
	if data.SegmentKey == "" {
		return nil, fmt.Errorf("%w: no segment", ErrInvalidMessage)
	}
	if p.objects == nil {
		return nil, fmt.Errorf("no object store to load %s", data.SegmentKey)
	}
	return storage.GetSegment(ctx, p.objects, data.SegmentKey)
}
