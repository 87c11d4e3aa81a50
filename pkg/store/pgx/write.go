package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const recordChunkSize = 250

const upsertRecordSQL = `
INSERT INTO records (
	user_id, id, kind, segment_id, title, description, location, event_time,
	name, alias, relationship_to_author, emotion, intensity, people, emotions
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (user_id, id) DO UPDATE
SET kind                   = EXCLUDED.kind,
    segment_id             = COALESCE(records.segment_id, EXCLUDED.segment_id),
    title                  = EXCLUDED.title,
    description            = EXCLUDED.description,
    location               = EXCLUDED.location,
    event_time             = EXCLUDED.event_time,
    name                   = EXCLUDED.name,
    alias                  = EXCLUDED.alias,
    relationship_to_author = EXCLUDED.relationship_to_author,
    emotion                = EXCLUDED.emotion,
    intensity              = EXCLUDED.intensity,
    people                 = EXCLUDED.people,
    emotions               = EXCLUDED.emotions,
    updated_at             = now();
`

const upsertEmbeddingSQL = `
INSERT INTO record_embeddings (user_id, record_id, field, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, record_id, field) DO UPDATE
SET embedding = EXCLUDED.embedding;
`

const upsertSegmentSQL = `
INSERT INTO segments (
	user_id, id, original_text, summary, source_type, source_file, metadata, created_at, summary_embedding
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, id) DO UPDATE
SET original_text     = EXCLUDED.original_text,
    summary           = EXCLUDED.summary,
    source_type       = EXCLUDED.source_type,
    source_file       = EXCLUDED.source_file,
    metadata          = EXCLUDED.metadata,
    summary_embedding = EXCLUDED.summary_embedding;
`

const insertRelationshipSQL = `
INSERT INTO relationships (user_id, segment_id, source_id, target_id, label, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING;
`

type recordEmbedding struct {
	recordID  string
	field     string
	embedding pgvector.Vector
}

// Upsert writes record under its identifier together with fresh embeddings
// of its vector fields. The segment a record was first persisted with is
// kept.
func (s *GraphDBStorage) Upsert(ctx context.Context, record common.Record) error {
	if record == nil || record.GetID() == "" {
		return fmt.Errorf("record without id")
	}
	embeddings, err := s.embedRecords(ctx, []common.Record{record})
	if err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b := &pgxv5.Batch{}
	s.queueRecord(b, rowFromRecord(record), nil)
	s.queueEmbeddings(b, record.GetID(), embeddings)
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", record.GetKind(), record.GetID(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorRecords(ctx, s.userID, []common.Record{record}); err != nil {
			logger.Warn("[Store][Upsert] Mirror failed", "id", record.GetID(), "err", err)
		}
	}
	return nil
}

// Persist writes the segment, its remaining records and their embeddings and
// replaces the segment's relationships, all in one transaction. Embeddings
// are generated before the transaction starts.
func (s *GraphDBStorage) Persist(ctx context.Context, segment *common.Segment) error {
	if segment == nil || segment.ID == "" {
		return fmt.Errorf("segment without id")
	}
	records := segment.Records()

	embeddings, err := s.embedRecords(ctx, records)
	if err != nil {
		return err
	}
	var summaryEmbedding *pgvector.Vector
	if segment.Summary != "" {
		vec, err := s.aiClient.GenerateEmbedding(ctx, []byte(segment.Summary))
		if err != nil {
			return fmt.Errorf("embed segment summary: %w", err)
		}
		v := pgvector.NewVector(vec)
		summaryEmbedding = &v
	}

	createdAt := segment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	metadata := segment.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertSegmentSQL,
		s.userID,
		segment.ID,
		util.SanitizePostgresText(segment.OriginalText),
		util.SanitizePostgresText(segment.Summary),
		segment.SourceType,
		segment.SourceFile,
		metadata,
		createdAt,
		summaryEmbedding,
	); err != nil {
		return fmt.Errorf("failed to upsert segment: %w", err)
	}

	byRecord := make(map[string][]recordEmbedding, len(records))
	for _, e := range embeddings {
		byRecord[e.recordID] = append(byRecord[e.recordID], e)
	}
	segmentID := segment.ID
	err = store.ChunkRange(len(records), recordChunkSize, func(start, end int) error {
		logger.Debug("[Store][Persist] Saving chunk", "segment_id", segment.ID, "records", end-start)
		b := &pgxv5.Batch{}
		for _, rec := range records[start:end] {
			s.queueRecord(b, rowFromRecord(rec), &segmentID)
			s.queueEmbeddings(b, rec.GetID(), byRecord[rec.GetID()])
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM relationships WHERE user_id = $1 AND segment_id = $2`,
		s.userID, segment.ID,
	); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}
	if len(segment.Relationships) > 0 {
		b := &pgxv5.Batch{}
		now := time.Now()
		for _, rel := range segment.Relationships {
			created := rel.CreatedAt
			if created.IsZero() {
				created = now
			}
			b.Queue(insertRelationshipSQL, s.userID, segment.ID, rel.Source, rel.Target, util.SanitizePostgresText(rel.Label), created)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("failed to save relationships: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorSegment(ctx, s.userID, segment); err != nil {
			logger.Warn("[Store][Persist] Mirror failed", "segment_id", segment.ID, "err", err)
		}
	}
	return nil
}

func (s *GraphDBStorage) queueRecord(b *pgxv5.Batch, r recordRow, segmentID *string) {
	b.Queue(upsertRecordSQL,
		s.userID, r.ID, r.Kind, segmentID, r.Title, r.Description, r.Location, r.EventTime,
		r.Name, r.Alias, r.RelationshipToAuthor, r.Emotion, r.Intensity, r.People, r.Emotions,
	)
}

// queueEmbeddings replaces all embeddings of one record. Fields that became
// empty lose their embedding.
func (s *GraphDBStorage) queueEmbeddings(b *pgxv5.Batch, recordID string, embs []recordEmbedding) {
	b.Queue(`DELETE FROM record_embeddings WHERE user_id = $1 AND record_id = $2`, s.userID, recordID)
	for _, e := range embs {
		b.Queue(upsertEmbeddingSQL, s.userID, e.recordID, e.field, e.embedding)
	}
}

func (s *GraphDBStorage) embedRecords(ctx context.Context, records []common.Record) ([]recordEmbedding, error) {
	inputs := store.EmbeddingInputs(records)
	if len(inputs) == 0 {
		return nil, nil
	}
	logger.Debug("[Store] Generating record embeddings", "count", len(inputs))
	vecs, err := store.GenerateEmbeddings(ctx, s.aiClient, store.EmbeddingTexts(inputs), s.maxParallel)
	if err != nil {
		return nil, fmt.Errorf("failed to embed records: %w", err)
	}
	if len(vecs) != len(inputs) {
		return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(vecs), len(inputs))
	}
	out := make([]recordEmbedding, len(inputs))
	for i, in := range inputs {
		out[i] = recordEmbedding{recordID: in.RecordID, field: in.Field, embedding: pgvector.NewVector(vecs[i])}
	}
	return out, nil
}
