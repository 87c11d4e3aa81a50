package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
)

type fakeDiscoverer struct {
	edges     []common.Relationship
	err       error
	calls     int
	existing  []common.Relationship
	summaries []ai.RecordSummary
}

func (f *fakeDiscoverer) DiscoverEdges(
	ctx context.Context,
	originalText string,
	existing []common.Relationship,
	summaries []ai.RecordSummary,
) ([]common.Relationship, error) {
	f.calls++
	f.existing = existing
	f.summaries = summaries
	return f.edges, f.err
}

func localTestSegment() *common.Segment {
	return &common.Segment{
		ID:           "S1",
		OriginalText: "Went to the park with Anna. Felt joy.",
		Events: []*common.Event{
			{ID: "E1", Title: "Park", Participants: []string{"anna", "Ben"}},
		},
		People: []*common.Person{
			{ID: "P1", Name: "Anna Schmidt"},
			{ID: "P2", Name: "Maria", Alias: "Mom"},
		},
		Thoughts: []*common.Thought{
			{ID: "T1", Title: "Spring", PeopleMentioned: []string{"mom"}, Emotion: "JOY"},
		},
		Emotions: []*common.Emotion{
			{ID: "M1", Title: "joy"},
			{ID: "M2", Title: "joyful"},
		},
		Problems: []*common.Problem{
			{ID: "X1", Title: "Tired", People: []string{"Anna"}, Emotions: []string{"joy"}},
		},
		Achievements: []*common.Achievement{
			{ID: "A1", Title: "Ran", Emotions: []string{"joyful"}},
		},
		Intentions: []*common.Intention{
			{ID: "I1", Title: "Call", People: []string{"Mom"}},
		},
	}
}

func hasEdge(edges []common.Relationship, source, target, label string) bool {
	for _, e := range edges {
		if e.Source == source && e.Target == target && e.Label == label {
			return true
		}
	}
	return false
}

func TestBuildLocalEdges_Rules(t *testing.T) {
	g := NewGraphClient(NewGraphClientParams{})
	seg := localTestSegment()

	edges := g.BuildLocalEdges(context.Background(), seg, nil)

	want := []struct{ source, target, label string }{
		{"E1", "P1", common.LabelParticipatedIn},
		{"T1", "P2", common.LabelRelatedTo},
		{"T1", "M1", common.LabelRelatedTo},
		{"X1", "P1", common.LabelRelatedTo},
		{"X1", "M1", common.LabelRelatedTo},
		{"A1", "M2", common.LabelRelatedTo},
		{"I1", "P2", common.LabelRelatedTo},
	}
	if len(edges) != len(want) {
		t.Fatalf("expected %d edges, got %d: %+v", len(want), len(edges), edges)
	}
	for _, w := range want {
		if !hasEdge(edges, w.source, w.target, w.label) {
			t.Fatalf("expected edge %s -> %s (%s), got %+v", w.source, w.target, w.label, edges)
		}
	}
	if len(seg.Relationships) != len(edges) {
		t.Fatalf("expected edges attached to segment, got %d", len(seg.Relationships))
	}
}

func TestBuildLocalEdges_DiscoveryIsValidated(t *testing.T) {
	g := NewGraphClient(NewGraphClientParams{})
	seg := localTestSegment()
	now := time.Now()
	d := &fakeDiscoverer{edges: []common.Relationship{
		{Source: "E1", Target: "M1", Label: "caused", CreatedAt: now},
		{Source: "E1", Target: "P1", Label: common.LabelParticipatedIn, CreatedAt: now},
		{Source: "E1", Target: "G404", Label: "with", CreatedAt: now},
		{Source: "", Target: "P1", Label: "with", CreatedAt: now},
	}}

	edges := g.BuildLocalEdges(context.Background(), seg, d)

	if d.calls != 1 {
		t.Fatalf("expected 1 discovery call, got %d", d.calls)
	}
	if len(d.existing) != 7 {
		t.Fatalf("expected rule edges passed to discovery, got %d", len(d.existing))
	}
	if len(d.summaries) != len(seg.Records()) {
		t.Fatalf("expected a summary per record, got %d", len(d.summaries))
	}
	if len(edges) != 8 {
		t.Fatalf("expected 8 edges, got %d: %+v", len(edges), edges)
	}
	if !hasEdge(edges, "E1", "M1", "caused") {
		t.Fatal("expected discovered edge E1 -> M1")
	}
	ids := seg.IDSet()
	for _, e := range edges {
		if _, ok := ids[e.Source]; !ok {
			t.Fatalf("edge with unknown source survived: %+v", e)
		}
		if _, ok := ids[e.Target]; !ok {
			t.Fatalf("edge with unknown target survived: %+v", e)
		}
	}
}

func TestBuildLocalEdges_DiscoveryFailureKeepsRuleEdges(t *testing.T) {
	g := NewGraphClient(NewGraphClientParams{})
	seg := localTestSegment()

	edges := g.BuildLocalEdges(context.Background(), seg, &fakeDiscoverer{err: errors.New("model down")})
	if len(edges) != 7 {
		t.Fatalf("expected 7 rule edges, got %d", len(edges))
	}
}

func TestBuildLocalEdges_AnnaScenario(t *testing.T) {
	g := NewGraphClient(NewGraphClientParams{})
	seg := &common.Segment{
		ID:     "S1",
		People: []*common.Person{{ID: "P1", Name: "Anna"}},
		Events: []*common.Event{{ID: "E1", Title: "Picnic", Participants: []string{"Anna"}}},
	}

	edges := g.BuildLocalEdges(context.Background(), seg, nil)
	if len(edges) != 1 || !hasEdge(edges, "E1", "P1", common.LabelParticipatedIn) {
		t.Fatalf("expected single E1 -> P1 edge, got %+v", edges)
	}
}
