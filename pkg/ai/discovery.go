package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
)

// RecordSummary is the compact view of a record handed to edge discovery.
type RecordSummary struct {
	ID          string
	Kind        common.Kind
	Title       string
	Name        string
	Description string
}

// SummarizeRecords builds the discovery listing for a segment's records.
func SummarizeRecords(records []common.Record) []RecordSummary {
	out := make([]RecordSummary, 0, len(records))
	for _, r := range records {
		s := RecordSummary{
			ID:          r.GetID(),
			Kind:        r.GetKind(),
			Title:       r.GetTitle(),
			Description: r.GetDescription(),
		}
		if p, ok := r.(*common.Person); ok {
			s.Name = p.Name
			if s.Name == "" {
				s.Name = p.Alias
			}
		}
		out = append(out, s)
	}
	return out
}

// EdgeDiscoverer proposes additional relationships between the records of a
// segment. Results are untrusted and must be validated by the caller.
type EdgeDiscoverer interface {
	DiscoverEdges(
		ctx context.Context,
		originalText string,
		existing []common.Relationship,
		summaries []RecordSummary,
	) ([]common.Relationship, error)
}

type discoveredEdge struct {
	SourceID string `json:"source_id" jsonschema_description:"ID of the source record"`
	TargetID string `json:"target_id" jsonschema_description:"ID of the target record"`
	Type     string `json:"type" jsonschema_description:"Type of the connection in plain text, e.g. 'participated in' or 'related to'"`
}

type discoveredEdges struct {
	Items []discoveredEdge `json:"items" jsonschema_description:"Connections between records"`
}

// AIEdgeDiscoverer asks a language model for relationships the rule pass
// could not find.
type AIEdgeDiscoverer struct {
	client          GraphAIClient
	maxPromptTokens int
	maxRetries      int
	now             func() time.Time
}

type NewAIEdgeDiscovererParams struct {
	Client GraphAIClient
	// MaxPromptTokens bounds the original text placed in the prompt. Zero
	// disables truncation.
	MaxPromptTokens int
	MaxRetries      int
}

func NewAIEdgeDiscoverer(params NewAIEdgeDiscovererParams) *AIEdgeDiscoverer {
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &AIEdgeDiscoverer{
		client:          params.Client,
		maxPromptTokens: params.MaxPromptTokens,
		maxRetries:      retries,
		now:             time.Now,
	}
}

func (d *AIEdgeDiscoverer) DiscoverEdges(
	ctx context.Context,
	originalText string,
	existing []common.Relationship,
	summaries []RecordSummary,
) ([]common.Relationship, error) {
	if d.client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	if len(summaries) < 2 {
		return nil, nil
	}

	text, err := TruncateTokens(originalText, d.maxPromptTokens)
	if err != nil {
		logger.Warn("[AI][Discovery] Failed to truncate original text", "err", err)
		text = originalText
	}
	prompt := BuildDiscoverEdgesPrompt(text, existing, summaries)

	var res discoveredEdges
	err = util.RetryErrWithContext(ctx, d.maxRetries, func(ctx context.Context) error {
		res = discoveredEdges{}
		return d.client.GenerateCompletionWithFormat(
			ctx,
			"record_connections",
			"Connections between records of one diary entry",
			prompt,
			&res,
			WithSystemPrompts(DiscoverEdgesSystemPrompt),
			WithTemperature(0.1),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("discover edges: %w", err)
	}

	createdAt := d.now().UTC()
	out := make([]common.Relationship, 0, len(res.Items))
	for _, item := range res.Items {
		label := strings.TrimSpace(item.Type)
		if label == "" {
			label = common.LabelRelatedTo
		}
		out = append(out, common.Relationship{
			Source:    strings.TrimSpace(item.SourceID),
			Target:    strings.TrimSpace(item.TargetID),
			Label:     label,
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

var summaryCategories = []struct {
	kind  common.Kind
	title string
}{
	{common.KindEvent, "Events"},
	{common.KindPerson, "People"},
	{common.KindThought, "Thoughts"},
	{common.KindEmotion, "Emotions"},
	{common.KindProblem, "Problems"},
	{common.KindAchievement, "Achievements"},
	{common.KindIntention, "Intentions"},
}

// BuildDiscoverEdgesPrompt renders the discovery prompt with the present
// connections and the records grouped by category.
func BuildDiscoverEdgesPrompt(
	originalText string,
	existing []common.Relationship,
	summaries []RecordSummary,
) string {
	var conns strings.Builder
	if len(existing) == 0 {
		conns.WriteString("none\n")
	}
	for _, e := range existing {
		fmt.Fprintf(&conns, "- (%s, %s, %s)\n", e.Source, e.Target, e.Label)
	}

	var records strings.Builder
	for _, cat := range summaryCategories {
		first := true
		for _, s := range summaries {
			if s.Kind != cat.kind {
				continue
			}
			if first {
				fmt.Fprintf(&records, "\n%s:\n", cat.title)
				first = false
			}
			if s.Kind == common.KindPerson {
				fmt.Fprintf(&records, "- ID: %s, Name: %s\n", s.ID, s.Name)
				continue
			}
			fmt.Fprintf(&records, "- ID: %s, Title: %s, Description: %s\n", s.ID, s.Title, s.Description)
		}
	}

	return fmt.Sprintf(DiscoverEdgesPrompt, originalText, conns.String(), records.String())
}
