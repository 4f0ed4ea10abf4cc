package knowledge

import "context"

// Document 写入混合索引的chunk文档：正文 + 向量 + 页面元数据。
// 只有正文和向量都就绪才会写入，索引里不存在半成品。
type Document struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"embedding"`
	SourceType   string    `json:"source_type"`
	SpaceKey     string    `json:"space_key"`
	PageID       string    `json:"page_id"`
	PageTitle    string    `json:"page_title"`
	SectionTitle string    `json:"section_title"`
	URL          string    `json:"url"`
	LastUpdated  string    `json:"last_updated"`
	Version      int       `json:"version"`
}

// ScoredDocument 检索命中
type ScoredDocument struct {
	Document
	Score float64
}

// Filter 元数据精确过滤条件，零值字段不参与过滤
type Filter struct {
	SourceType string
	SpaceKey   string
	PageID     string
}

// SearchRequest 混合检索请求：同一请求同时携带原始查询文本（关键词打分）
// 和查询向量（最近邻打分），融合由索引实现完成，调用方不做二次排序
type SearchRequest struct {
	QueryText   string
	QueryVector []float32
	TopK        int
	Filter      *Filter
}

// HybridIndex 混合（向量+关键词）索引抽象。Upsert按Document.ID幂等：
// 相同id相同内容重写等价于no-op，相同id不同内容整条替换。
type HybridIndex interface {
	EnsureSchema(ctx context.Context, dimensions int) error
	Upsert(ctx context.Context, docs []Document) error
	Search(ctx context.Context, req SearchRequest) ([]ScoredDocument, error)
	DeleteByFilter(ctx context.Context, f Filter) error
	Ready() bool
}
