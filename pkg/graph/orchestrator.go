package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

// ErrPersistSegment is returned when the final segment write fails. The
// segment is left in its modified in-memory state and may be merged again.
var ErrPersistSegment = errors.New("persist segment")

// MergeState is the phase a segment merge reached.
type MergeState int

const (
	StateResolving MergeState = iota
	StateRemapping
	StatePersisting
	StateDone
	StateFailed
)

func (s MergeState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateRemapping:
		return "remapping"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("MergeState(%d)", int(s))
}

// MergeResult describes the outcome of one MergeSegmentIntoGlobal call.
//
// IDMap maps every local identifier folded into a global record to that
// record's identifier. Merged counts those records, New the records persisted
// as new global records and Skipped the matches whose upsert failed; skipped
// records stay in the segment and are persisted as new.
type MergeResult struct {
	State     MergeState
	IDMap     map[string]string
	Merged    int
	New       int
	Skipped   int
	Retryable bool
}

// MergeOption configures one MergeSegmentIntoGlobal call.
type MergeOption func(*mergeOptions)

type mergeOptions struct {
	checkpoint func(ctx context.Context, segment *common.Segment) error
}

// WithCheckpoint calls fn with the resolved segment right before it is
// persisted. A segment saved there can be persisted later without being
// resolved again, which would fold its records into the global ones twice.
// A failing fn is logged and does not stop the merge.
func WithCheckpoint(fn func(ctx context.Context, segment *common.Segment) error) MergeOption {
	return func(o *mergeOptions) {
		o.checkpoint = fn
	}
}

// MergeSegmentIntoGlobal folds the records of segment into the global store.
//
// Every category but emotions is resolved against the store: matched records
// are merged into their global counterpart, upserted under the global
// identifier and recorded in the identifier map. Categories run in parallel,
// records of one category run in order. Relationships are then rewritten to
// the global identifiers, merged records are removed from the segment, the
// inline reference lists of the remaining records are cleared and the
// segment is persisted.
//
// Only a failing persist, or a cancelled context, is returned as an error.
func (g *GraphClient) MergeSegmentIntoGlobal(
	ctx context.Context,
	segment *common.Segment,
	globalStore store.GlobalStore,
	opts ...MergeOption,
) (*MergeResult, error) {
	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}
	res := &MergeResult{
		State: StateResolving,
		IDMap: make(map[string]string),
	}
	logger.Debug("[Graph][Merge] Resolving segment", "segment_id", segment.ID, "records", len(segment.MergeableRecords()))

	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelRequests)
	for _, kind := range common.Kinds {
		if kind == common.KindEmotion {
			continue
		}
		records := segment.RecordsOf(kind)
		if len(records) == 0 {
			continue
		}
		eg.Go(func() error {
			part := g.resolveCategory(gctx, kind, records, globalStore)
			mu.Lock()
			for local, global := range part.ids {
				res.IDMap[local] = global
			}
			res.Merged += len(part.ids)
			res.Skipped += part.skipped
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		res.State = StateFailed
		res.Retryable = true
		return res, err
	}

	res.State = StateRemapping
	segment.Relationships = remapEdges(segment.Relationships, res.IDMap)

	res.State = StatePersisting
	segment.Prune(res.IDMap)
	segment.ClearRelationalFields()
	res.New = len(segment.Records())

	if o.checkpoint != nil {
		if err := o.checkpoint(ctx, segment); err != nil {
			logger.Warn("[Graph][Merge] Failed to checkpoint segment", "segment_id", segment.ID, "err", err)
		}
	}

	if err := globalStore.Persist(ctx, segment); err != nil {
		res.State = StateFailed
		res.Retryable = true
		logger.Error("[Graph][Merge] Failed to persist segment", "segment_id", segment.ID, "err", err)
		return res, fmt.Errorf("%w %s: %w", ErrPersistSegment, segment.ID, err)
	}

	res.State = StateDone
	logger.Info("[Graph][Merge] Segment merged", "segment_id", segment.ID, "merged", res.Merged, "new", res.New, "skipped", res.Skipped, "edges", len(segment.Relationships))
	return res, nil
}

type categoryResult struct {
	ids     map[string]string
	skipped int
}

func (g *GraphClient) resolveCategory(
	ctx context.Context,
	kind common.Kind,
	records []common.Record,
	globalStore store.GlobalStore,
) categoryResult {
	out := categoryResult{ids: make(map[string]string)}
	for _, local := range records {
		if ctx.Err() != nil {
			return out
		}

		candidate := g.FindBestCandidate(ctx, local, globalStore)
		if candidate == nil || !IsMatch(local, candidate) {
			continue
		}

		// already folded in by an earlier run of this segment
		if candidate.GetID() == local.GetID() {
			out.ids[local.GetID()] = candidate.GetID()
			continue
		}

		merged := Merge(local, candidate)
		err := util.RetryErrWithBackoff(ctx, g.maxRetries, g.retryBackoff, func(ctx context.Context) error {
			return globalStore.Upsert(ctx, merged)
		})
		if err != nil {
			logger.Warn("[Graph][Merge] Failed to upsert merged record, keeping it local", "kind", kind, "local_id", local.GetID(), "global_id", candidate.GetID(), "err", err)
			out.skipped++
			continue
		}

		logger.Debug("[Graph][Merge] Merged record", "kind", kind, "local_id", local.GetID(), "global_id", candidate.GetID())
		out.ids[local.GetID()] = candidate.GetID()
	}
	return out
}

// remapEdges rewrites edge endpoints through ids. Edges that become
// duplicates collapse into the first one, edges that become self loops are
// dropped.
func remapEdges(edges []common.Relationship, ids map[string]string) []common.Relationship {
	out := make([]common.Relationship, 0, len(edges))
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		wasLoop := e.Source == e.Target
		if id, ok := ids[e.Source]; ok {
			e.Source = id
		}
		if id, ok := ids[e.Target]; ok {
			e.Target = id
		}
		if e.Source == e.Target && !wasLoop {
			continue
		}
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		seen[e.Key()] = struct{}{}
		out = append(out, e)
	}
	return out
}
