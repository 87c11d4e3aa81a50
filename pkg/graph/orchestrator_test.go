package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"
	"github.com/OFFIS-RIT/diarygraph/pkg/store/memory"
)

func annaSegment() *common.Segment {
	return &common.Segment{
		ID:     "S1",
		People: []*common.Person{{ID: "P1", Name: "Anna"}},
		Events: []*common.Event{{ID: "E1", Title: "Picnic", Participants: []string{"Anna"}}},
	}
}

func TestMergeSegmentIntoGlobal_AnnaScenario(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(&common.Person{ID: "G1", Name: "Anna", Description: "my sister"})

	seg := annaSegment()
	g.BuildLocalEdges(ctx, seg, nil)

	res, err := g.MergeSegmentIntoGlobal(ctx, seg, s)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("expected state done, got %s", res.State)
	}
	if res.IDMap["P1"] != "G1" {
		t.Fatalf("expected P1 mapped to G1, got %v", res.IDMap)
	}
	if len(seg.People) != 0 {
		t.Fatalf("expected merged person pruned, got %+v", seg.People)
	}
	if len(seg.Events) != 1 || len(seg.Events[0].Participants) != 0 {
		t.Fatalf("expected event kept with cleared participants, got %+v", seg.Events)
	}
	if len(seg.Relationships) != 1 || !hasEdge(seg.Relationships, "E1", "G1", common.LabelParticipatedIn) {
		t.Fatalf("expected edge E1 -> G1, got %+v", seg.Relationships)
	}

	persisted, ok := s.Segment("S1")
	if !ok {
		t.Fatal("expected segment persisted")
	}
	if len(persisted.Events) != 1 || len(persisted.People) != 0 || len(persisted.Relationships) != 1 {
		t.Fatalf("unexpected persisted segment %+v", persisted)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 global records, got %d", s.Len())
	}
}

func TestMergeSegmentIntoGlobal_Idempotent(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(&common.Person{ID: "G1", Name: "Anna"})

	first := annaSegment()
	g.BuildLocalEdges(ctx, first, nil)
	if _, err := g.MergeSegmentIntoGlobal(ctx, first, s); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	afterFirst := s.Len()

	second := annaSegment()
	g.BuildLocalEdges(ctx, second, nil)
	res, err := g.MergeSegmentIntoGlobal(ctx, second, s)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if s.Len() != afterFirst {
		t.Fatalf("expected %d global records after second run, got %d", afterFirst, s.Len())
	}
	if res.IDMap["E1"] != "E1" || res.IDMap["P1"] != "G1" {
		t.Fatalf("expected both records resolved, got %v", res.IDMap)
	}
	if s.LenOf(common.KindPerson) != 1 || s.LenOf(common.KindEvent) != 1 {
		t.Fatalf("expected one person and one event, got %d and %d", s.LenOf(common.KindPerson), s.LenOf(common.KindEvent))
	}
}

func TestMergeSegmentIntoGlobal_UpsertFailureKeepsRecordLocal(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{MaxRetries: 3})
	s := memory.New()
	s.Seed(&common.Person{ID: "G1", Name: "Anna"})
	var attempts atomic.Int32
	s.FailUpsert = func(common.Record) error {
		attempts.Add(1)
		return errors.New("deadlock detected")
	}

	seg := annaSegment()
	g.BuildLocalEdges(ctx, seg, nil)
	res, err := g.MergeSegmentIntoGlobal(ctx, seg, s)
	if err != nil {
		t.Fatalf("expected upsert failures not to fail the merge, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 upsert attempts, got %d", attempts.Load())
	}
	if res.Skipped != 1 || len(res.IDMap) != 0 {
		t.Fatalf("expected one skipped record and empty map, got %+v", res)
	}
	if len(seg.People) != 1 || !hasEdge(seg.Relationships, "E1", "P1", common.LabelParticipatedIn) {
		t.Fatalf("expected person and edge to stay local, got %+v %+v", seg.People, seg.Relationships)
	}
	if _, err := s.GetRecord(ctx, "P1"); err != nil {
		t.Fatalf("expected P1 persisted as new record, got %v", err)
	}
}

func TestMergeSegmentIntoGlobal_PersistFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(&common.Person{ID: "G1", Name: "Anna"})
	s.FailPersist = func(*common.Segment) error { return errors.New("connection reset") }

	seg := annaSegment()
	g.BuildLocalEdges(ctx, seg, nil)
	res, err := g.MergeSegmentIntoGlobal(ctx, seg, s)
	if !errors.Is(err, ErrPersistSegment) {
		t.Fatalf("expected ErrPersistSegment, got %v", err)
	}
	if res.State != StateFailed || !res.Retryable {
		t.Fatalf("expected failed retryable state, got %+v", res)
	}
	if _, ok := s.Segment("S1"); ok {
		t.Fatal("expected segment not persisted")
	}
	if len(seg.People) != 0 || !hasEdge(seg.Relationships, "E1", "G1", common.LabelParticipatedIn) {
		t.Fatalf("expected modified in-memory segment, got %+v %+v", seg.People, seg.Relationships)
	}

	s.FailPersist = nil
	res, err = g.MergeSegmentIntoGlobal(ctx, seg, s)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("expected state done, got %s", res.State)
	}
	if s.LenOf(common.KindPerson) != 1 || s.LenOf(common.KindEvent) != 1 {
		t.Fatalf("expected one person and one event, got %d and %d", s.LenOf(common.KindPerson), s.LenOf(common.KindEvent))
	}
	persisted, _ := s.Segment("S1")
	if !hasEdge(persisted.Relationships, "E1", "G1", common.LabelParticipatedIn) {
		t.Fatalf("expected remapped edge persisted, got %+v", persisted.Relationships)
	}
}

func TestMergeSegmentIntoGlobal_CheckpointBeforePersist(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(&common.Person{ID: "G1", Name: "Anna"})
	s.FailPersist = func(*common.Segment) error { return errors.New("connection reset") }

	var saved *common.Segment
	checkpoint := WithCheckpoint(func(ctx context.Context, seg *common.Segment) error {
		saved = &common.Segment{
			ID:            seg.ID,
			People:        append([]*common.Person(nil), seg.People...),
			Relationships: append([]common.Relationship(nil), seg.Relationships...),
		}
		return nil
	})

	seg := annaSegment()
	g.BuildLocalEdges(ctx, seg, nil)
	if _, err := g.MergeSegmentIntoGlobal(ctx, seg, s, checkpoint); !errors.Is(err, ErrPersistSegment) {
		t.Fatalf("expected ErrPersistSegment, got %v", err)
	}
	if saved == nil {
		t.Fatal("expected checkpoint written before the failed persist")
	}
	if len(saved.People) != 0 || !hasEdge(saved.Relationships, "E1", "G1", common.LabelParticipatedIn) {
		t.Fatalf("expected resolved segment in checkpoint, got %+v %+v", saved.People, saved.Relationships)
	}
}

func TestMergeSegmentIntoGlobal_CheckpointFailureDoesNotStopMerge(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()

	checkpoint := WithCheckpoint(func(context.Context, *common.Segment) error {
		return errors.New("bucket gone")
	})
	if _, err := g.MergeSegmentIntoGlobal(ctx, annaSegment(), s, checkpoint); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok := s.Segment("S1"); !ok {
		t.Fatal("expected segment persisted")
	}
}

func TestMergeSegmentIntoGlobal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(&common.Person{ID: "G1", Name: "Anna"})

	res, err := g.MergeSegmentIntoGlobal(ctx, annaSegment(), s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.State != StateFailed || !res.Retryable {
		t.Fatalf("expected failed retryable state, got %+v", res)
	}
	if _, ok := s.Segment("S1"); ok {
		t.Fatal("expected segment not persisted")
	}
}

func TestMergeSegmentIntoGlobal_EmotionsStayLocal(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(&common.Emotion{ID: "G1", Title: "joy"})

	seg := &common.Segment{
		ID:       "S1",
		Thoughts: []*common.Thought{{ID: "T1", Title: "Spring", Emotion: "joy"}},
		Emotions: []*common.Emotion{{ID: "M1", Title: "joy"}},
	}
	g.BuildLocalEdges(ctx, seg, nil)

	res, err := g.MergeSegmentIntoGlobal(ctx, seg, s)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok := res.IDMap["M1"]; ok {
		t.Fatalf("expected emotion not to be merged, got %v", res.IDMap)
	}
	if len(seg.Emotions) != 1 || seg.Thoughts[0].Emotion != "" {
		t.Fatalf("expected emotion kept and thought emotion cleared, got %+v %+v", seg.Emotions, seg.Thoughts)
	}
	if s.LenOf(common.KindEmotion) != 2 {
		t.Fatalf("expected 2 emotions in the global set, got %d", s.LenOf(common.KindEmotion))
	}
	if !hasEdge(seg.Relationships, "T1", "M1", common.LabelRelatedTo) {
		t.Fatalf("expected T1 -> M1 edge, got %+v", seg.Relationships)
	}
}

type failingSearchStore struct {
	*memory.Storage
}

func (f failingSearchStore) LexicalSearch(ctx context.Context, collection string, fields []string, query string, limit int) ([]store.LexicalHit, error) {
	return nil, errors.New("index offline")
}

func (f failingSearchStore) VectorSearch(ctx context.Context, collection, field, queryText string, limit int) ([]store.VectorHit, error) {
	return nil, errors.New("embedding service offline")
}

func TestMergeSegmentIntoGlobal_SearchFailuresMeanNoMatch(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	mem := memory.New()
	mem.Seed(&common.Person{ID: "G1", Name: "Anna"})

	seg := annaSegment()
	res, err := g.MergeSegmentIntoGlobal(ctx, seg, failingSearchStore{mem})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(res.IDMap) != 0 || res.New != 2 {
		t.Fatalf("expected everything persisted as new, got %+v", res)
	}
}

func TestFindBestCandidate_PicksHighestFusedScore(t *testing.T) {
	ctx := context.Background()
	g := NewGraphClient(NewGraphClientParams{})
	s := memory.New()
	s.Seed(
		&common.Event{ID: "G1", Title: "Went to the park"},
		&common.Event{ID: "G2", Title: "Dentist"},
	)

	got := g.FindBestCandidate(ctx, &common.Event{ID: "E1", Title: "Went to park"}, s)
	if got == nil || got.GetID() != "G1" {
		t.Fatalf("expected G1, got %+v", got)
	}
	if got := g.FindBestCandidate(ctx, &common.Event{ID: "E2"}, s); got != nil {
		t.Fatalf("expected no candidate for an empty record, got %+v", got)
	}
}

func TestRemapEdges(t *testing.T) {
	edges := []common.Relationship{
		{Source: "E1", Target: "P1", Label: common.LabelParticipatedIn},
		{Source: "E1", Target: "P2", Label: common.LabelParticipatedIn},
		{Source: "P1", Target: "P2", Label: "sibling of"},
		{Source: "T1", Target: "M1", Label: common.LabelRelatedTo},
	}
	ids := map[string]string{"P1": "G1", "P2": "G1"}

	got := remapEdges(edges, ids)
	if len(got) != 2 {
		t.Fatalf("expected 2 edges, got %+v", got)
	}
	if !hasEdge(got, "E1", "G1", common.LabelParticipatedIn) || !hasEdge(got, "T1", "M1", common.LabelRelatedTo) {
		t.Fatalf("unexpected remapped edges %+v", got)
	}
	for _, e := range got {
		if _, ok := ids[e.Source]; ok {
			t.Fatalf("edge still references mapped source %+v", e)
		}
		if _, ok := ids[e.Target]; ok {
			t.Fatalf("edge still references mapped target %+v", e)
		}
	}
}
