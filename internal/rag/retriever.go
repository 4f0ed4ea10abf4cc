package rag

import (
	"context"
	"fmt"

	"github.com/cavco/helpdesk-go/internal/knowledge"
)

// Retriever 混合检索：查询向量化后，同一请求同时带原始文本和向量打到索引，
// 两路信号的融合由索引完成，这里不做本地重排。默认按来源类型过滤，
// 过滤条件缺失时报错而不是静默放开。
type Retriever struct {
	embedder   knowledge.Embedder
	index      knowledge.HybridIndex
	sourceType string
}

// NewRetriever 创建检索器
func NewRetriever(embedder knowledge.Embedder, index knowledge.HybridIndex, sourceType string) (*Retriever, error) {
	if sourceType == "" {
		return nil, fmt.Errorf("retriever source type filter must be configured")
	}
	return &Retriever{embedder: embedder, index: index, sourceType: sourceType}, nil
}

// Retrieve 返回按混合得分排序的至多topK个chunk
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	docs, err := r.index.Search(ctx, knowledge.SearchRequest{
		QueryText:   query,
		QueryVector: vector,
		TopK:        topK,
		Filter:      &knowledge.Filter{SourceType: r.sourceType},
	})
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	chunks := make([]RetrievedChunk, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, RetrievedChunk{
			ID:           doc.ID,
			PageID:       doc.PageID,
			PageTitle:    doc.PageTitle,
			SectionTitle: doc.SectionTitle,
			URL:          doc.URL,
			Content:      doc.Content,
			Score:        doc.Score,
		})
	}
	return chunks, nil
}
