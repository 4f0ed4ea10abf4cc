package knowledge

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/logger"
)

// CompositeIndex 双引擎混合索引：关键词走Elasticsearch，向量走Milvus，
// 适配器内部做归一化加权融合（向量0.6 / 关键词0.4），对外仍是单个HybridIndex。
// 用于dense_vector不可用或向量规模需要独立扩容的部署。
type CompositeIndex struct {
	fulltext       *ElasticIndex
	vector         *MilvusStore
	vectorWeight   float64
	fulltextWeight float64
}

// NewCompositeIndex 创建双引擎混合索引
func NewCompositeIndex(fulltext *ElasticIndex, vector *MilvusStore) *CompositeIndex {
	return &CompositeIndex{
		fulltext:       fulltext,
		vector:         vector,
		vectorWeight:   0.6,
		fulltextWeight: 0.4,
	}
}

func (c *CompositeIndex) EnsureSchema(ctx context.Context, dimensions int) error {
	if err := c.fulltext.EnsureSchema(ctx, dimensions); err != nil {
		return err
	}
	return c.vector.EnsureCollection(ctx)
}

// Upsert 两侧都写入；任一侧失败整批报错，由上层按子批重试
func (c *CompositeIndex) Upsert(ctx context.Context, docs []Document) error {
	if err := c.fulltext.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("fulltext upsert: %w", err)
	}
	if err := c.vector.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	return nil
}

func (c *CompositeIndex) Search(ctx context.Context, req SearchRequest) ([]ScoredDocument, error) {
	if req.TopK <= 0 {
		req.TopK = 5
	}

	var vectorResults, keywordResults []ScoredDocument
	var err error

	if len(req.QueryVector) > 0 {
		vectorResults, err = c.vector.Search(ctx, req.QueryVector, req.TopK*2, req.Filter)
		if err != nil {
			// 向量侧失败降级为纯关键词
			logger.Warn("vector search failed, falling back to keyword only", zap.Error(err))
			vectorResults = nil
		}
	}
	if req.QueryText != "" {
		keywordResults, err = c.fulltext.searchKeyword(ctx, req.QueryText, req.TopK*2, req.Filter)
		if err != nil {
			if vectorResults == nil {
				return nil, err
			}
			logger.Warn("keyword search failed, using vector results only", zap.Error(err))
			keywordResults = nil
		}
	}
	if vectorResults == nil && keywordResults == nil {
		return nil, fmt.Errorf("both search engines unavailable")
	}

	merged := c.mergeResults(vectorResults, keywordResults)
	if len(merged) > req.TopK {
		merged = merged[:req.TopK]
	}
	return merged, nil
}

// mergeResults 归一化后加权融合，按id去重（两路都命中的求和）
func (c *CompositeIndex) mergeResults(vectorResults, keywordResults []ScoredDocument) []ScoredDocument {
	byID := make(map[string]*ScoredDocument)
	order := make([]string, 0, len(vectorResults)+len(keywordResults))

	add := func(results []ScoredDocument, weight float64) {
		maxScore := 0.0
		for _, r := range results {
			if r.Score > maxScore {
				maxScore = r.Score
			}
		}
		for _, r := range results {
			normalized := 0.0
			if maxScore > 0 {
				normalized = r.Score / maxScore
			}
			if existing, ok := byID[r.ID]; ok {
				existing.Score += normalized * weight
				continue
			}
			doc := r
			doc.Score = normalized * weight
			byID[r.ID] = &doc
			order = append(order, r.ID)
		}
	}
	add(vectorResults, c.vectorWeight)
	add(keywordResults, c.fulltextWeight)

	merged := make([]ScoredDocument, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

func (c *CompositeIndex) DeleteByFilter(ctx context.Context, f Filter) error {
	if err := c.fulltext.DeleteByFilter(ctx, f); err != nil {
		return err
	}
	expr := filterExpr(&f)
	if expr == "" {
		return fmt.Errorf("refusing to delete with empty filter")
	}
	return c.vector.DeleteByExpr(ctx, expr)
}

func (c *CompositeIndex) Ready() bool {
	return c.fulltext.Ready() && c.vector.Ready()
}
