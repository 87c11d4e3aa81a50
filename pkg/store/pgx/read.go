package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *GraphDBStorage) GetRecord(ctx context.Context, id string) (common.Record, error) {
	row := s.conn.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM records r WHERE r.user_id = $1 AND r.id = $2`, recordColumns),
		s.userID, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

// GetConnectedRecords returns the records on the other end of any
// relationship touching ids, in identifier order.
func (s *GraphDBStorage) GetConnectedRecords(ctx context.Context, ids []string) ([]common.Record, error) {
	ids = store.DedupeStrings(ids)
	if len(ids) == 0 {
		return []common.Record{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM records r
		WHERE r.user_id = $1
		  AND r.id IN (
			SELECT target_id FROM relationships WHERE user_id = $1 AND source_id = ANY($2)
			UNION
			SELECT source_id FROM relationships WHERE user_id = $1 AND target_id = ANY($2)
		  )
		  AND NOT (r.id = ANY($2))
		ORDER BY r.id
	`, recordColumns)

	rows, err := s.conn.Query(ctx, sql, s.userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get connected records: %w", err)
	}
	defer rows.Close()

	out := make([]common.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connected record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
