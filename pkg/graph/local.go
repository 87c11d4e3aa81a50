package graph

import (
	"context"
	"strings"

	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/similarity"
)

// BuildLocalEdges connects the records of one segment with each other.
//
// Name and emotion references are resolved by rules first. The discoverer,
// when given, is then asked once for edges the rules missed. Every edge whose
// endpoints are not records of the segment is dropped. The validated edges
// replace segment.Relationships and are returned.
func (g *GraphClient) BuildLocalEdges(
	ctx context.Context,
	segment *common.Segment,
	discoverer ai.EdgeDiscoverer,
) []common.Relationship {
	edges := g.ruleEdges(segment)

	if discoverer != nil {
		discovered, err := discoverer.DiscoverEdges(
			ctx,
			segment.OriginalText,
			edges,
			ai.SummarizeRecords(segment.Records()),
		)
		if err != nil {
			logger.Warn("[Graph][LocalEdges] Edge discovery failed", "segment_id", segment.ID, "err", err)
		} else {
			edges = appendNewEdges(edges, discovered)
		}
	}

	edges = validateEdges(segment.ID, edges, segment.IDSet())
	segment.Relationships = edges

	logger.Debug("[Graph][LocalEdges] Built segment edges", "segment_id", segment.ID, "edges", len(edges))
	return edges
}

func (g *GraphClient) ruleEdges(segment *common.Segment) []common.Relationship {
	createdAt := g.now().UTC()
	edges := make([]common.Relationship, 0)
	seen := make(map[string]struct{})

	connect := func(sourceID string, targets []string, label string) {
		for _, target := range targets {
			rel := common.Relationship{
				Source:    sourceID,
				Target:    target,
				Label:     label,
				CreatedAt: createdAt,
			}
			if _, ok := seen[rel.Key()]; ok {
				continue
			}
			seen[rel.Key()] = struct{}{}
			edges = append(edges, rel)
		}
	}

	people := func(names []string) []string {
		out := make([]string, 0)
		for _, name := range names {
			out = append(out, matchPeople(segment.People, name)...)
		}
		return out
	}
	emotions := func(titles []string) []string {
		out := make([]string, 0)
		for _, title := range titles {
			out = append(out, matchEmotions(segment.Emotions, title)...)
		}
		return out
	}

	for _, ev := range segment.Events {
		connect(ev.ID, people(ev.Participants), common.LabelParticipatedIn)
	}
	for _, th := range segment.Thoughts {
		connect(th.ID, people(th.PeopleMentioned), common.LabelRelatedTo)
		if th.Emotion != "" {
			connect(th.ID, emotions([]string{th.Emotion}), common.LabelRelatedTo)
		}
	}
	for _, pr := range segment.Problems {
		connect(pr.ID, people(pr.People), common.LabelRelatedTo)
		connect(pr.ID, emotions(pr.Emotions), common.LabelRelatedTo)
	}
	for _, ac := range segment.Achievements {
		connect(ac.ID, people(ac.People), common.LabelRelatedTo)
		connect(ac.ID, emotions(ac.Emotions), common.LabelRelatedTo)
	}
	for _, in := range segment.Intentions {
		connect(in.ID, people(in.People), common.LabelRelatedTo)
	}
	return edges
}

// matchPeople returns the people whose name or alias contains name.
func matchPeople(people []*common.Person, name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	out := make([]string, 0)
	for _, p := range people {
		if similarity.ContainsFold(p.Name, name) || similarity.ContainsFold(p.Alias, name) {
			out = append(out, p.ID)
		}
	}
	return out
}

// matchEmotions returns the emotions titled exactly title, ignoring case.
func matchEmotions(emotions []*common.Emotion, title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	out := make([]string, 0)
	for _, e := range emotions {
		if similarity.EqualFold(strings.TrimSpace(e.Title), title) {
			out = append(out, e.ID)
		}
	}
	return out
}

func appendNewEdges(edges, discovered []common.Relationship) []common.Relationship {
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		seen[e.Key()] = struct{}{}
	}
	for _, e := range discovered {
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		seen[e.Key()] = struct{}{}
		edges = append(edges, e)
	}
	return edges
}

func validateEdges(segmentID string, edges []common.Relationship, ids map[string]struct{}) []common.Relationship {
	out := make([]common.Relationship, 0, len(edges))
	for _, e := range edges {
		if _, ok := ids[e.Source]; !ok {
			logger.Warn("[Graph][LocalEdges] Dropping edge with unknown source", "segment_id", segmentID, "source_id", e.Source, "target_id", e.Target)
			continue
		}
		if _, ok := ids[e.Target]; !ok {
			logger.Warn("[Graph][LocalEdges] Dropping edge with unknown target", "segment_id", segmentID, "source_id", e.Source, "target_id", e.Target)
			continue
		}
		out = append(out, e)
	}
	return out
}
