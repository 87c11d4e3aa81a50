package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
)

// ErrNotFound is returned by readers when no record has the given identifier.
var ErrNotFound = errors.New("record not found")

// LexicalHit is a record returned by a lexical search with its rank. Higher
// is better.
type LexicalHit struct {
	Record common.Record
	Score  float64
}

// VectorHit is a record returned by a vector search with its distance to the
// query. Lower is better.
type VectorHit struct {
	Record   common.Record
	Distance float64
}

// GlobalStore is the persistent, deduplicated record set the merge engine
// folds segments into. Implementations are bound to one tenant.
//
// Upsert creates the record when its identifier is unknown and replaces it
// otherwise; the identifier is the write key that serializes concurrent
// merges into the same global record. Persist writes the remaining records of
// a segment together with its relationships and must not leave a partial
// segment behind on error.
type GlobalStore interface {
	LexicalSearch(ctx context.Context, collection string, fields []string, query string, limit int) ([]LexicalHit, error)
	VectorSearch(ctx context.Context, collection string, field string, queryText string, limit int) ([]VectorHit, error)
	Upsert(ctx context.Context, record common.Record) error
	Persist(ctx context.Context, segment *common.Segment) error
}

// GraphReader reads the global record set.
type GraphReader interface {
	GetRecord(ctx context.Context, id string) (common.Record, error)
	// GetConnectedRecords returns the records sharing a relationship with any
	// of ids, excluding ids themselves.
	GetConnectedRecords(ctx context.Context, ids []string) ([]common.Record, error)
}

// GraphMirror receives a copy of everything written to the global store, for
// example a graph database used for exploration. Mirrors are best effort.
type GraphMirror interface {
	MirrorRecords(ctx context.Context, userID string, records []common.Record) error
	MirrorSegment(ctx context.Context, userID string, segment *common.Segment) error
}
