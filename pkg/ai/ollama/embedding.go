package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/OFFIS-RIT/diarygraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama. Blank input yields a zero
// vector of the configured dimension.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, c.dimensions), nil
	}

	out, err := c.embed(ctx, []string{string(input)})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateEmbeddings embeds several inputs in one request.
func (c *GraphOllamaClient) GenerateEmbeddings(
	ctx context.Context,
	inputs [][]byte,
) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	texts := make([]string, 0, len(inputs))
	idx := make([]int, 0, len(inputs))
	for i, in := range inputs {
		s := string(in)
		if strings.TrimSpace(s) == "" {
			out[i] = make([]float32, c.dimensions)
			continue
		}
		texts = append(texts, s)
		idx = append(idx, i)
	}
	if len(texts) == 0 {
		return out, nil
	}

	embs, err := c.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for j, i := range idx {
		out[i] = embs[j]
	}
	return out, nil
}

func (c *GraphOllamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: input,
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	out := make([][]float32, len(texts))
	for i := range texts {
		// pad or truncate to the configured dimension
		vec := make([]float32, c.dimensions)
		if i < len(res.Embeddings) {
			for j, val := range res.Embeddings[i] {
				if j >= c.dimensions {
					break
				}
				vec[j] = float32(val)
			}
		}
		out[i] = vec
	}
	return out, nil
}
