package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/OFFIS-RIT/diarygraph/pkg/ai"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 7 * 24 * time.Hour

// KV is the subset of a key value store the embedding cache needs. A miss is
// reported as (nil, nil).
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisKV struct {
	rdb *goredis.Client
}

// NewRedisKV connects to addr and verifies the connection with a ping.
func NewRedisKV(addr string) (KV, func() error, error) {
	if addr == "" {
		return nil, nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisKV{rdb: rdb}, rdb.Close, nil
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return b, err
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// CachedClient decorates a GraphAIClient with an embedding cache. Completions
// pass through unchanged. Cache failures are logged and fall back to the
// wrapped client.
type CachedClient struct {
	ai.GraphAIClient

	kv     KV
	ttl    time.Duration
	prefix string
}

type NewCachedClientParams struct {
	Client ai.GraphAIClient
	KV     KV
	TTL    time.Duration
	// Namespace separates embeddings of different models, e.g. the model name.
	Namespace string
}

func NewCachedClient(params NewCachedClientParams) *CachedClient {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachedClient{
		GraphAIClient: params.Client,
		kv:            params.KV,
		ttl:           ttl,
		prefix:        "emb:" + params.Namespace + ":",
	}
}

func (c *CachedClient) key(input []byte) string {
	sum := sha256.Sum256(input)
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedClient) lookup(ctx context.Context, input []byte) []float32 {
	b, err := c.kv.Get(ctx, c.key(input))
	if err != nil {
		logger.Warn("[Cache] Failed to read embedding", "err", err)
		return nil
	}
	if b == nil {
		return nil
	}
	vec, err := decodeVector(b)
	if err != nil {
		logger.Warn("[Cache] Dropping malformed embedding", "err", err)
		return nil
	}
	return vec
}

func (c *CachedClient) store(ctx context.Context, input []byte, vec []float32) {
	if err := c.kv.Set(ctx, c.key(input), encodeVector(vec), c.ttl); err != nil {
		logger.Warn("[Cache] Failed to write embedding", "err", err)
	}
}

func (c *CachedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if vec := c.lookup(ctx, input); vec != nil {
		return vec, nil
	}
	vec, err := c.GraphAIClient.GenerateEmbedding(ctx, input)
	if err != nil {
		return nil, err
	}
	c.store(ctx, input, vec)
	return vec, nil
}

// GenerateEmbeddings serves hits from the cache and embeds the misses, in one
// request when the wrapped client supports batching.
func (c *CachedClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	missIdx := make([]int, 0, len(inputs))
	misses := make([][]byte, 0, len(inputs))
	for i, in := range inputs {
		if vec := c.lookup(ctx, in); vec != nil {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		misses = append(misses, in)
	}
	if len(misses) == 0 {
		return out, nil
	}

	var embs [][]float32
	if b, ok := c.GraphAIClient.(ai.EmbeddingBatcher); ok {
		var err error
		embs, err = b.GenerateEmbeddings(ctx, misses)
		if err != nil {
			return nil, err
		}
		if len(embs) != len(misses) {
			return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(embs), len(misses))
		}
	} else {
		embs = make([][]float32, len(misses))
		for i, in := range misses {
			vec, err := c.GraphAIClient.GenerateEmbedding(ctx, in)
			if err != nil {
				return nil, err
			}
			embs[i] = vec
		}
	}

	for j, i := range missIdx {
		out[i] = embs[j]
		c.store(ctx, misses[j], embs[j])
	}
	return out, nil
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
