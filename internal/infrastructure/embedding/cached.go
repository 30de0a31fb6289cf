package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"video-memory-qa/internal/infrastructure/persistence/redis"
	"video-memory-qa/pkg/logger"
	"video-memory-qa/pkg/metrics"
)

// CachedEmbedder 带 Redis 缓存的向量化客户端
//
// 相同文本只向量化一次。缓存故障不阻塞请求，退化为直连。
type CachedEmbedder struct {
	inner embedding.Embedder
	cache *redis.Cache
	model string
	ttl   time.Duration
}

// NewCachedEmbedder 创建带缓存的 Embedder，cache 为 nil 时不缓存
func NewCachedEmbedder(inner embedding.Embedder, cache *redis.Cache, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, cache: cache, model: model, ttl: ttl}
}

// EmbedStrings 批量向量化，命中缓存的文本不再请求上游
func (e *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := e.lookup(ctx, text); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			vectors[i] = vec
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := e.inner.EmbedStrings(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(missing), err)
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missing))
	}

	for j, vec := range fresh {
		vectors[missingIdx[j]] = vec
		e.store(ctx, missing[j], vec)
	}
	return vectors, nil
}

func (e *CachedEmbedder) lookup(ctx context.Context, text string) ([]float64, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, err := e.cache.Get(ctx, e.key(text))
	if err != nil {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (e *CachedEmbedder) store(ctx context.Context, text string, vec []float64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, e.key(text), vec, e.ttl); err != nil {
		// 缓存写入失败只降低命中率，不影响结果
		logger.Warn(ctx, "embedding cache write failed", "error", err)
	}
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", e.model, hex.EncodeToString(sum[:16]))
}
