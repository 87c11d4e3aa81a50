package graph

import (
	"context"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"
)

const (
	lexicalWeight = 0.4
	vectorWeight  = 0.6
)

type scoredCandidate struct {
	record common.Record
	score  float64
}

// FindBestCandidate searches the global store for the record most likely to
// describe the same thing as local.
//
// One lexical query over the kind's text fields and one vector query per
// embedded field are issued. Lexical ranks are weighted with 0.4, vector
// distances d become 1/(1+d) weighted with 0.6, and the single best scored hit
// wins. Failing queries are logged and count as empty; nil is returned when
// nothing was found.
func (g *GraphClient) FindBestCandidate(
	ctx context.Context,
	local common.Record,
	globalStore store.GlobalStore,
) common.Record {
	cfg, ok := common.SearchConfigFor(local.GetKind())
	if !ok {
		logger.Error("[Graph][Resolve] No search config for record kind", "kind", local.GetKind())
		return nil
	}

	candidates := make([]scoredCandidate, 0, g.searchLimit*(1+len(cfg.VectorFields)))

	if query := lexicalQuery(local, cfg); query != "" {
		hits, err := globalStore.LexicalSearch(ctx, cfg.Collection, cfg.LexicalFields, query, g.searchLimit)
		if err != nil {
			logger.Warn("[Graph][Resolve] Lexical search failed", "id", local.GetID(), "collection", cfg.Collection, "err", err)
		}
		for _, h := range hits {
			if h.Record == nil {
				continue
			}
			candidates = append(candidates, scoredCandidate{record: h.Record, score: h.Score * lexicalWeight})
		}
	}

	for _, field := range cfg.VectorFields {
		text := common.FieldValue(local, field)
		if text == "" {
			continue
		}
		hits, err := globalStore.VectorSearch(ctx, cfg.Collection, field, text, g.searchLimit)
		if err != nil {
			logger.Warn("[Graph][Resolve] Vector search failed", "id", local.GetID(), "collection", cfg.Collection, "field", field, "err", err)
			continue
		}
		for _, h := range hits {
			if h.Record == nil {
				continue
			}
			candidates = append(candidates, scoredCandidate{record: h.Record, score: vectorSimilarity(h.Distance) * vectorWeight})
		}
	}

	var best *scoredCandidate
	for i := range candidates {
		if best == nil || candidates[i].score > best.score {
			best = &candidates[i]
		}
	}
	if best == nil {
		return nil
	}
	return best.record
}

func lexicalQuery(local common.Record, cfg common.SearchConfig) string {
	query := common.FieldValue(local, cfg.LexicalQueryField)
	if query == "" {
		// people known only by an alias
		if p, ok := local.(*common.Person); ok {
			query = p.Alias
		}
	}
	return query
}

func vectorSimilarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
