package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/logger"
	"github.com/cavco/helpdesk-go/internal/metrics"
)

// Embedder 文本向量化接口。摄取和查询必须配置同一个模型部署，
// 否则向量不可比。这是部署约定，组件不在运行时校验。
type Embedder interface {
	// EmbedBatch 批量向量化，返回与输入一一对应的向量序列。
	// 批次失败整体报错，绝不静默丢弃单条。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery 查询时单条向量化
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// embeddingAPI go-openai客户端中本组件用到的子集，便于测试替换
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder 基于OpenAI Embedding API的实现，按配置批大小分批提交
type OpenAIEmbedder struct {
	client     embeddingAPI
	model      string
	dimensions int
	batchSize  int
}

// NewOpenAIEmbedder 创建向量化器
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("embedding api key is not configured")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(cfg.APIKey),
		model:      cfg.Model,
		dimensions: dims,
		batchSize:  batchSize,
	}, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts is empty")
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := e.embedOnce(ctx, batch)
		if err != nil {
			metrics.EmbeddingBatches.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", start, end, err)
		}
		metrics.EmbeddingBatches.WithLabelValues("ok").Inc()
		result = append(result, vectors...)
	}
	return result, nil
}

// embedOnce 提交一个批次，带退避重试。响应按index对齐，保证1:1顺序。
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(e.model),
				Input: batch,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("embedding request retry", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("embedding response has %d items for %d inputs", len(resp.Data), len(batch))
	}

	vectors := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		vectors[d.Index] = v
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing item %d", i)
		}
	}
	return vectors, nil
}
