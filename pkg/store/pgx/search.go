package pgx

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	"github.com/pgvector/pgvector-go"
)

// LexicalSearch ranks records of the collection's kind with ts_rank over the
// concatenated fields. Any query word may match.
func (s *GraphDBStorage) LexicalSearch(
	ctx context.Context,
	collection string,
	fields []string,
	query string,
	limit int,
) ([]store.LexicalHit, error) {
	kind, ok := common.KindForCollection(collection)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	doc, err := lexicalDocument(fields)
	if err != nil {
		return nil, err
	}
	tsq := orTsQuery(query)
	if tsq == "" {
		return []store.LexicalHit{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT %s, ts_rank(to_tsvector('simple', %s), q) AS rank
		FROM records r, to_tsquery('simple', $3) q
		WHERE r.user_id = $1
		  AND r.kind = $2
		  AND to_tsvector('simple', %s) @@ q
		ORDER BY rank DESC, r.id
		LIMIT $4
	`, recordColumns, doc, doc)

	rows, err := s.conn.Query(ctx, sql, s.userID, string(kind), tsq, searchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("lexical search %s: %w", collection, err)
	}
	defer rows.Close()

	hits := make([]store.LexicalHit, 0)
	for rows.Next() {
		var rank float32
		rec, err := scanRecord(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		hits = append(hits, store.LexicalHit{Record: rec, Score: float64(rank)})
	}
	return hits, rows.Err()
}

// VectorSearch embeds queryText and returns the records whose embedding of
// field is closest by cosine distance.
func (s *GraphDBStorage) VectorSearch(
	ctx context.Context,
	collection string,
	field string,
	queryText string,
	limit int,
) ([]store.VectorHit, error) {
	kind, ok := common.KindForCollection(collection)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	cfg, _ := common.SearchConfigFor(kind)
	if !slices.Contains(cfg.VectorFields, field) {
		return nil, fmt.Errorf("field %q of %s has no embedding", field, collection)
	}
	if strings.TrimSpace(queryText) == "" {
		return []store.VectorHit{}, nil
	}

	embedding, err := s.aiClient.GenerateEmbedding(ctx, []byte(queryText))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sql := fmt.Sprintf(`
		SELECT %s, e.embedding <=> $4 AS distance
		FROM record_embeddings e
		JOIN records r ON r.user_id = e.user_id AND r.id = e.record_id
		WHERE e.user_id = $1
		  AND r.kind = $2
		  AND e.field = $3
		ORDER BY distance, r.id
		LIMIT $5
	`, recordColumns)

	rows, err := s.conn.Query(ctx, sql, s.userID, string(kind), field, pgvector.NewVector(embedding), searchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("vector search %s.%s: %w", collection, field, err)
	}
	defer rows.Close()

	hits := make([]store.VectorHit, 0)
	for rows.Next() {
		var distance float64
		rec, err := scanRecord(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hits = append(hits, store.VectorHit{Record: rec, Distance: distance})
	}
	return hits, rows.Err()
}

func lexicalDocument(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no lexical fields")
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := lexicalColumns[f]
		if !ok {
			return "", fmt.Errorf("field %q is not searchable", f)
		}
		cols = append(cols, col)
	}
	return "concat_ws(' ', " + strings.Join(cols, ", ") + ")", nil
}

// orTsQuery turns free text into a tsquery that matches any of its words.
// Only letters and digits survive, so the result is always valid syntax.
func orTsQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(store.DedupeStrings(words), " | ")
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return 5
	}
	return limit
}
