package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.GlobalStore and store.GraphReader on
// PostgreSQL with pgvector. Every query is scoped to the user the storage was
// created for.
type GraphDBStorage struct {
	conn        pgxIConn
	aiClient    ai.GraphAIClient
	userID      string
	maxParallel int
	mirror      store.GraphMirror
}

type GraphDBStorageOption func(*GraphDBStorage)

// WithMirror copies every committed write to m. Mirror failures are logged
// and never fail the write.
func WithMirror(m store.GraphMirror) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.mirror = m
	}
}

// WithMaxParallel bounds concurrent embedding requests for clients without
// batch support.
func WithMaxParallel(n int) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.maxParallel = n
	}
}

// NewGraphDBStorageWithConnection creates a GraphDBStorage for userID on an
// existing connection or pool. The AI client embeds record fields on write
// and query texts on vector search.
func NewGraphDBStorageWithConnection(
	conn pgxIConn,
	aiClient ai.GraphAIClient,
	userID string,
	opts ...GraphDBStorageOption,
) (*GraphDBStorage, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is empty")
	}
	s := &GraphDBStorage{
		conn:        conn,
		aiClient:    aiClient,
		userID:      userID,
		maxParallel: 15,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

var (
	_ store.GlobalStore = (*GraphDBStorage)(nil)
	_ store.GraphReader = (*GraphDBStorage)(nil)
)
