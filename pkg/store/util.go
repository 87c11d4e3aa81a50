package store

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"golang.org/x/sync/errgroup"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GenerateEmbeddings embeds inputs in one request when the client supports
// batching and fans out with at most maxParallel requests otherwise.
func GenerateEmbeddings(
	ctx context.Context,
	client ai.GraphAIClient,
	inputs [][]byte,
	maxParallel int,
) ([][]float32, error) {
	if client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if b, ok := client.(ai.EmbeddingBatcher); ok {
		return b.GenerateEmbeddings(ctx, inputs)
	}

	out := make([][]float32, len(inputs))

	eg, ectx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		eg.SetLimit(maxParallel)
	}
	for i := range inputs {
		idx := i
		in := inputs[i]
		eg.Go(func() error {
			emb, err := client.GenerateEmbedding(ectx, in)
			if err != nil {
				return err
			}
			out[idx] = emb
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// EmbeddingInput is the text of one vector field of one record.
type EmbeddingInput struct {
	RecordID string
	Field    string
	Text     string
}

// EmbeddingInputs lists the vector fields configured for each record's kind.
// Fields with an empty value are skipped.
func EmbeddingInputs(records []common.Record) []EmbeddingInput {
	out := make([]EmbeddingInput, 0, len(records)*2)
	for _, r := range records {
		cfg, ok := common.SearchConfigFor(r.GetKind())
		if !ok {
			continue
		}
		for _, field := range cfg.VectorFields {
			text := common.FieldValue(r, field)
			if text == "" {
				continue
			}
			out = append(out, EmbeddingInput{RecordID: r.GetID(), Field: field, Text: text})
		}
	}
	return out
}

// EmbeddingTexts returns the texts of inputs in order, ready for
// GenerateEmbeddings.
func EmbeddingTexts(inputs []EmbeddingInput) [][]byte {
	out := make([][]byte, len(inputs))
	for i, in := range inputs {
		out[i] = []byte(in.Text)
	}
	return out
}
