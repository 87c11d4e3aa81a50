// Package neo4j mirrors the global record graph into Neo4j for exploration.
// Postgres stays the source of truth; the mirror is written after each
// committed store write and may lag or miss writes.
package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"

	driver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var kindLabels = map[common.Kind]string{
	common.KindEvent:       "Event",
	common.KindPerson:      "Person",
	common.KindThought:     "Thought",
	common.KindEmotion:     "Emotion",
	common.KindProblem:     "Problem",
	common.KindAchievement: "Achievement",
	common.KindIntention:   "Intention",
}

type Mirror struct {
	driver   driver.DriverWithContext
	database string
}

var _ store.GraphMirror = (*Mirror)(nil)

// NewFromEnv connects to NEO4J_URI. It returns nil, nil when NEO4J_URI is
// unset so callers can treat the mirror as optional.
func NewFromEnv(ctx context.Context) (*Mirror, error) {
	uri := strings.TrimSpace(util.GetEnvString("NEO4J_URI", ""))
	if uri == "" {
		return nil, nil
	}
	user := util.GetEnvString("NEO4J_USER", "neo4j")
	password := util.GetEnvString("NEO4J_PASSWORD", "")
	timeout := time.Duration(util.GetEnvNumeric("NEO4J_TIMEOUT_SECONDS", 10)) * time.Second

	d, err := driver.NewDriverWithContext(uri, driver.BasicAuth(user, password, ""), func(cfg *driver.Config) {
		cfg.MaxConnectionPoolSize = int(util.GetEnvNumeric("NEO4J_MAX_POOL_SIZE", 50))
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.VerifyConnectivity(vctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	m := &Mirror{driver: d, database: util.GetEnvString("NEO4J_DATABASE", "")}
	m.ensureSchema(ctx)
	return m, nil
}

func (m *Mirror) Close(ctx context.Context) error {
	if m == nil || m.driver == nil {
		return nil
	}
	return m.driver.Close(ctx)
}

func (m *Mirror) ensureSchema(ctx context.Context) {
	session := m.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT record_key IF NOT EXISTS FOR (r:Record) REQUIRE (r.user_id, r.id) IS UNIQUE`,
		`CREATE CONSTRAINT segment_key IF NOT EXISTS FOR (s:Segment) REQUIRE (s.user_id, s.id) IS UNIQUE`,
	} {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			logger.Warn("[Neo4j] Schema init failed, continuing", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (m *Mirror) session(ctx context.Context) driver.SessionWithContext {
	return m.driver.NewSession(ctx, driver.SessionConfig{
		AccessMode:   driver.AccessModeWrite,
		DatabaseName: m.database,
	})
}

func (m *Mirror) MirrorRecords(ctx context.Context, userID string, records []common.Record) error {
	if m == nil || len(records) == 0 {
		return nil
	}
	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx driver.ManagedTransaction) (any, error) {
		return nil, mergeRecords(ctx, tx, userID, records)
	})
	return err
}

// MirrorSegment writes the segment node, its records with IN_SEGMENT
// membership and its relationships. Edge endpoints that are not mirrored yet
// are created as bare Record nodes.
func (m *Mirror) MirrorSegment(ctx context.Context, userID string, segment *common.Segment) error {
	if m == nil || segment == nil {
		return nil
	}
	records := segment.Records()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx driver.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, `
MERGE (s:Segment {user_id: $user_id, id: $id})
SET s.summary = $summary,
    s.source_type = $source_type,
    s.created_at = $created_at,
    s.synced_at = $synced_at
`, map[string]any{
			"user_id":     userID,
			"id":          segment.ID,
			"summary":     segment.Summary,
			"source_type": segment.SourceType,
			"created_at":  segment.CreatedAt.UTC().Format(time.RFC3339Nano),
			"synced_at":   now,
		}); err != nil {
			return nil, err
		}

		if err := mergeRecords(ctx, tx, userID, records); err != nil {
			return nil, err
		}

		if len(records) > 0 {
			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.GetID())
			}
			if err := run(ctx, tx, `
MATCH (s:Segment {user_id: $user_id, id: $segment_id})
UNWIND $ids AS rid
MATCH (r:Record {user_id: $user_id, id: rid})
MERGE (r)-[:IN_SEGMENT]->(s)
`, map[string]any{"user_id": userID, "segment_id": segment.ID, "ids": ids}); err != nil {
				return nil, err
			}
		}

		if rows := relationshipRows(segment.ID, segment.Relationships); len(rows) > 0 {
			if err := run(ctx, tx, `
UNWIND $rows AS e
MERGE (a:Record {user_id: $user_id, id: e.source_id})
MERGE (b:Record {user_id: $user_id, id: e.target_id})
MERGE (a)-[rel:RELATES {label: e.label, segment_id: e.segment_id}]->(b)
SET rel.created_at = e.created_at
`, map[string]any{"user_id": userID, "rows": rows}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func mergeRecords(ctx context.Context, tx driver.ManagedTransaction, userID string, records []common.Record) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for kind, rows := range recordRowsByKind(records, now) {
		label, ok := kindLabels[kind]
		if !ok {
			continue
		}
		cypher := fmt.Sprintf(`
UNWIND $rows AS r
MERGE (n:Record {user_id: $user_id, id: r.id})
SET n += r.props, n:%s
`, label)
		if err := run(ctx, tx, cypher, map[string]any{"user_id": userID, "rows": rows}); err != nil {
			return fmt.Errorf("mirror %s records: %w", kind, err)
		}
	}
	return nil
}

func run(ctx context.Context, tx driver.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// recordRowsByKind builds UNWIND rows per kind. Every non-empty text field of
// a record becomes a node property.
func recordRowsByKind(records []common.Record, syncedAt string) map[common.Kind][]map[string]any {
	out := make(map[common.Kind][]map[string]any)
	for _, r := range records {
		if r == nil || r.GetID() == "" {
			continue
		}
		props := map[string]any{
			"kind":      string(r.GetKind()),
			"synced_at": syncedAt,
		}
		for _, field := range nodeFields[r.GetKind()] {
			if v := common.FieldValue(r, field); v != "" {
				props[field] = v
			}
		}
		out[r.GetKind()] = append(out[r.GetKind()], map[string]any{"id": r.GetID(), "props": props})
	}
	return out
}

var nodeFields = map[common.Kind][]string{
	common.KindEvent:       {"title", "description", "location", "time"},
	common.KindPerson:      {"name", "alias", "description", "relationship_to_author"},
	common.KindThought:     {"title", "description"},
	common.KindEmotion:     {"title", "description", "intensity"},
	common.KindProblem:     {"title", "description"},
	common.KindAchievement: {"title", "description"},
	common.KindIntention:   {"title", "description"},
}

func relationshipRows(segmentID string, rels []common.Relationship) []map[string]any {
	out := make([]map[string]any, 0, len(rels))
	for _, e := range rels {
		if e.Source == "" || e.Target == "" {
			continue
		}
		out = append(out, map[string]any{
			"source_id":  e.Source,
			"target_id":  e.Target,
			"label":      e.Label,
			"segment_id": segmentID,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}
