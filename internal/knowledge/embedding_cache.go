package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/logger"
)

// CachedEmbedder 在Embedder前加一层Redis缓存，按文本哈希命中，
// 重复摄取未变更页面时省掉大部分向量化调用。缓存故障时直接穿透。
type CachedEmbedder struct {
	inner Embedder
	rdb   *redis.Client
	model string
	ttl   time.Duration
}

// NewCachedEmbedder 创建带缓存的向量化器
func NewCachedEmbedder(inner Embedder, model string, cfg config.RedisConfig) *CachedEmbedder {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Host + ":" + cfg.Port,
		DB:   cfg.DB,
	})
	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, rdb: rdb, model: model, ttl: ttl}
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.model, hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return c.inner.EmbedBatch(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}

	result := make([][]float32, len(texts))
	var missIdx []int

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("embedding cache unavailable, bypassing", zap.Error(err))
		return c.inner.EmbedBatch(ctx, texts)
	}
	for i, raw := range cached {
		s, ok := raw.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		var v []float32
		if err := json.Unmarshal([]byte(s), &v); err != nil || len(v) == 0 {
			missIdx = append(missIdx, i)
			continue
		}
		result[i] = v
	}

	if len(missIdx) > 0 {
		missTexts := make([]string, len(missIdx))
		for i, idx := range missIdx {
			missTexts[i] = texts[idx]
		}
		vectors, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		pipe := c.rdb.Pipeline()
		for i, idx := range missIdx {
			result[idx] = vectors[i]
			if payload, err := json.Marshal(vectors[i]); err == nil {
				pipe.Set(ctx, keys[idx], payload, c.ttl)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}

	logger.Debug("embedding cache lookup",
		zap.Int("total", len(texts)), zap.Int("misses", len(missIdx)))
	return result, nil
}
