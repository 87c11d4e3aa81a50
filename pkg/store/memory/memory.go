// Package memory is a map backed global record set for tests and local runs.
// Vector search compares raw text with the similarity ratio instead of
// embeddings, so no model is needed.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/similarity"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"
)

type Storage struct {
	mu            sync.RWMutex
	records       map[string]common.Record
	segments      map[string]*common.Segment
	relationships map[string][]common.Relationship

	// FailUpsert and FailPersist inject errors; a non-nil return aborts the write.
	FailUpsert  func(common.Record) error
	FailPersist func(*common.Segment) error
}

func New() *Storage {
	return &Storage{
		records:       make(map[string]common.Record),
		segments:      make(map[string]*common.Segment),
		relationships: make(map[string][]common.Relationship),
	}
}

// Seed inserts records directly, bypassing failure hooks.
func (s *Storage) Seed(records ...common.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.GetID()] = common.Clone(r)
	}
}

// Len returns the number of records in the global set.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// LenOf returns the number of records of one kind.
func (s *Storage) LenOf(kind common.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.GetKind() == kind {
			n++
		}
	}
	return n
}

// Segment returns a copy of a persisted segment.
func (s *Storage) Segment(id string) (*common.Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, false
	}
	c := *seg
	c.Relationships = append([]common.Relationship(nil), s.relationships[id]...)
	return &c, true
}

func (s *Storage) LexicalSearch(
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
	terms := tokenize(query)
	if len(terms) == 0 {
		return []store.LexicalHit{}, nil
	}

	s.mu.RLock()
	hits := make([]store.LexicalHit, 0)
	for _, r := range s.records {
		if r.GetKind() != kind {
			continue
		}
		words := make(map[string]struct{})
		for _, f := range fields {
			for _, w := range tokenize(common.FieldValue(r, f)) {
				words[w] = struct{}{}
			}
		}
		matched := 0
		for _, t := range terms {
			if _, ok := words[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, store.LexicalHit{
			Record: common.Clone(r),
			Score:  float64(matched) / float64(len(terms)),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.GetID() < hits[j].Record.GetID()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Storage) VectorSearch(
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
	if strings.TrimSpace(queryText) == "" {
		return []store.VectorHit{}, nil
	}

	s.mu.RLock()
	hits := make([]store.VectorHit, 0)
	for _, r := range s.records {
		if r.GetKind() != kind {
			continue
		}
		value := common.FieldValue(r, field)
		if value == "" {
			continue
		}
		hits = append(hits, store.VectorHit{
			Record:   common.Clone(r),
			Distance: 1 - similarity.Ratio(queryText, value),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Record.GetID() < hits[j].Record.GetID()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Storage) Upsert(ctx context.Context, record common.Record) error {
	if record == nil || record.GetID() == "" {
		return fmt.Errorf("record without id")
	}
	if s.FailUpsert != nil {
		if err := s.FailUpsert(record); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.records[record.GetID()] = common.Clone(record)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Persist(ctx context.Context, segment *common.Segment) error {
	if segment == nil || segment.ID == "" {
		return fmt.Errorf("segment without id")
	}
	if s.FailPersist != nil {
		if err := s.FailPersist(segment); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copySeg := common.Segment{
		ID:           segment.ID,
		OriginalText: segment.OriginalText,
		Summary:      segment.Summary,
		SourceType:   segment.SourceType,
		SourceFile:   segment.SourceFile,
		CreatedAt:    segment.CreatedAt,
		Metadata:     segment.Metadata,
	}
	for _, r := range segment.Records() {
		c := common.Clone(r)
		s.records[r.GetID()] = c
		switch rec := c.(type) {
		case *common.Event:
			copySeg.Events = append(copySeg.Events, rec)
		case *common.Person:
			copySeg.People = append(copySeg.People, rec)
		case *common.Thought:
			copySeg.Thoughts = append(copySeg.Thoughts, rec)
		case *common.Emotion:
			copySeg.Emotions = append(copySeg.Emotions, rec)
		case *common.Problem:
			copySeg.Problems = append(copySeg.Problems, rec)
		case *common.Achievement:
			copySeg.Achievements = append(copySeg.Achievements, rec)
		case *common.Intention:
			copySeg.Intentions = append(copySeg.Intentions, rec)
		}
	}
	s.segments[segment.ID] = &copySeg
	s.relationships[segment.ID] = append([]common.Relationship(nil), segment.Relationships...)
	return nil
}

func (s *Storage) GetRecord(ctx context.Context, id string) (common.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return common.Clone(r), nil
}

func (s *Storage) GetConnectedRecords(ctx context.Context, ids []string) ([]common.Record, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]struct{})
	for _, rels := range s.relationships {
		for _, rel := range rels {
			if _, ok := want[rel.Source]; ok {
				found[rel.Target] = struct{}{}
			}
			if _, ok := want[rel.Target]; ok {
				found[rel.Source] = struct{}{}
			}
		}
	}

	out := make([]common.Record, 0, len(found))
	for id := range found {
		if _, self := want[id]; self {
			continue
		}
		if r, ok := s.records[id]; ok {
			out = append(out, common.Clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetID() < out[j].GetID() })
	return out, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
