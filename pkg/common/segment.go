package common

import (
	"fmt"
	"strings"
	"time"
)

const (
	LabelParticipatedIn = "participated in"
	LabelRelatedTo      = "related to"
)

// Relationship is a directed, labelled edge between two records.
type Relationship struct {
	Source    string    `json:"source_id"`
	Target    string    `json:"target_id"`
	Label     string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the identity of an edge ignoring its creation time.
func (r Relationship) Key() string {
	return r.Source + "\x00" + r.Target + "\x00" + r.Label
}

// Segment is one unit of source text with the records extracted from it and
// the edges between them.
//
// A segment arrives with segment-local identifiers and no edges. Edges are
// added by the local relationship pass, and the merge pass replaces, removes
// and rewrites records and edges in place until the segment is persisted.
type Segment struct {
	ID           string            `json:"id"`
	OriginalText string            `json:"original_text"`
	Summary      string            `json:"summary"`
	SourceType   string            `json:"source_type,omitempty"`
	SourceFile   string            `json:"source_file,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	Events       []*Event       `json:"events"`
	People       []*Person      `json:"people"`
	Thoughts     []*Thought     `json:"thoughts"`
	Emotions     []*Emotion     `json:"emotions"`
	Problems     []*Problem     `json:"problems"`
	Achievements []*Achievement `json:"achievements"`
	Intentions   []*Intention   `json:"intentions"`

	Relationships []Relationship `json:"relationships"`
}

// RecordsOf returns the records of one category.
func (s *Segment) RecordsOf(kind Kind) []Record {
	var out []Record
	switch kind {
	case KindEvent:
		out = make([]Record, 0, len(s.Events))
		for _, r := range s.Events {
			out = append(out, r)
		}
	case KindPerson:
		out = make([]Record, 0, len(s.People))
		for _, r := range s.People {
			out = append(out, r)
		}
	case KindThought:
		out = make([]Record, 0, len(s.Thoughts))
		for _, r := range s.Thoughts {
			out = append(out, r)
		}
	case KindEmotion:
		out = make([]Record, 0, len(s.Emotions))
		for _, r := range s.Emotions {
			out = append(out, r)
		}
	case KindProblem:
		out = make([]Record, 0, len(s.Problems))
		for _, r := range s.Problems {
			out = append(out, r)
		}
	case KindAchievement:
		out = make([]Record, 0, len(s.Achievements))
		for _, r := range s.Achievements {
			out = append(out, r)
		}
	case KindIntention:
		out = make([]Record, 0, len(s.Intentions))
		for _, r := range s.Intentions {
			out = append(out, r)
		}
	}
	return out
}

// Records returns every record of the segment in category order.
func (s *Segment) Records() []Record {
	out := make([]Record, 0)
	for _, kind := range Kinds {
		out = append(out, s.RecordsOf(kind)...)
	}
	return out
}

// MergeableRecords returns every record that takes part in global merging,
// which is all of them except emotions.
func (s *Segment) MergeableRecords() []Record {
	out := make([]Record, 0)
	for _, kind := range Kinds {
		if kind == KindEmotion {
			continue
		}
		out = append(out, s.RecordsOf(kind)...)
	}
	return out
}

// IDSet returns the identifiers of all records in the segment.
func (s *Segment) IDSet() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, r := range s.Records() {
		ids[r.GetID()] = struct{}{}
	}
	return ids
}

// Prune removes every record whose identifier is a key of ids.
func (s *Segment) Prune(ids map[string]string) {
	s.Events = pruneList(s.Events, ids)
	s.People = pruneList(s.People, ids)
	s.Thoughts = pruneList(s.Thoughts, ids)
	s.Emotions = pruneList(s.Emotions, ids)
	s.Problems = pruneList(s.Problems, ids)
	s.Achievements = pruneList(s.Achievements, ids)
	s.Intentions = pruneList(s.Intentions, ids)
}

// ClearRelationalFields empties the inline name and emotion lists of all
// remaining records. Those links live as explicit relationships afterwards.
func (s *Segment) ClearRelationalFields() {
	for _, r := range s.Events {
		r.Participants = []string{}
	}
	for _, r := range s.Thoughts {
		r.PeopleMentioned = []string{}
		r.Emotion = ""
	}
	for _, r := range s.Problems {
		r.People = []string{}
		r.Emotions = []string{}
	}
	for _, r := range s.Achievements {
		r.People = []string{}
		r.Emotions = []string{}
	}
	for _, r := range s.Intentions {
		r.People = []string{}
	}
}

// AssignMissingIDs gives every record and the segment itself an identifier
// when none is set.
func (s *Segment) AssignMissingIDs() error {
	if s.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		s.ID = id
	}
	for _, r := range s.Records() {
		if r.GetID() != "" {
			continue
		}
		id, err := NewID()
		if err != nil {
			return err
		}
		r.SetID(id)
	}
	return nil
}

// ScopeIDs prefixes every record identifier with the segment identifier and
// rewrites the relationship endpoints to match. Identifiers that already
// carry the prefix are left alone.
func (s *Segment) ScopeIDs() {
	prefix := s.ID + "/"
	ids := make(map[string]string)
	for _, r := range s.Records() {
		id := r.GetID()
		if id == "" || strings.HasPrefix(id, prefix) {
			continue
		}
		ids[id] = prefix + id
		r.SetID(prefix + id)
	}
	if len(ids) == 0 {
		return
	}
	for i, rel := range s.Relationships {
		if id, ok := ids[rel.Source]; ok {
			s.Relationships[i].Source = id
		}
		if id, ok := ids[rel.Target]; ok {
			s.Relationships[i].Target = id
		}
	}
}

// Validate checks that records have unique identifiers and the fields every
// kind requires.
func (s *Segment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("segment id is empty")
	}
	seen := make(map[string]struct{})
	for _, r := range s.Records() {
		id := r.GetID()
		if id == "" {
			return fmt.Errorf("%s record without id in segment %s", r.GetKind(), s.ID)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate record id %q in segment %s", id, s.ID)
		}
		seen[id] = struct{}{}

		switch rec := r.(type) {
		case *Person:
			if rec.Name == "" && rec.Alias == "" {
				return fmt.Errorf("person %s has neither name nor alias", id)
			}
		case *Emotion:
			if !rec.Intensity.Valid() {
				return fmt.Errorf("emotion %s has unknown intensity %q", id, rec.Intensity)
			}
			if rec.Title == "" {
				return fmt.Errorf("%s %s has no title", r.GetKind(), id)
			}
		default:
			if r.GetTitle() == "" {
				return fmt.Errorf("%s %s has no title", r.GetKind(), id)
			}
		}
	}
	return nil
}

func pruneList[T Record](list []T, ids map[string]string) []T {
	if len(list) == 0 {
		return list
	}
	out := make([]T, 0, len(list))
	for _, r := range list {
		if _, ok := ids[r.GetID()]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
