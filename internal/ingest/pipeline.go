package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/confluence"
	"github.com/cavco/helpdesk-go/internal/knowledge"
	"github.com/cavco/helpdesk-go/internal/logger"
	"github.com/cavco/helpdesk-go/internal/metrics"
)

// PageSource 页面内容源抽象（生产环境是Confluence客户端）
type PageSource interface {
	ListPageRefs(ctx context.Context, spaceKey string) ([]confluence.PageRef, error)
	GetPage(ctx context.Context, pageID, spaceKey string) (*confluence.Page, error)
}

// Stats 一次摄取运行的汇总结果
type Stats struct {
	PagesProcessed int
	PagesFailed    int
	ChunksCreated  int
	ChunksWritten  int
	Errors         []string
}

// Pipeline 离线摄取管道：抓取 -> 解析 -> 分块 -> 批量向量化 -> 幂等写入。
// 单页失败只记账不终止，一次运行尽可能多地推进索引。
type Pipeline struct {
	source       PageSource
	chunker      *knowledge.Chunker
	embedder     knowledge.Embedder
	upserter     *knowledge.Upserter
	spaceKey     string
	sourceType   string
	maxParallel  int
	replacePages bool
}

// Options 摄取管道依赖与参数
type Options struct {
	Source      PageSource
	Chunker     *knowledge.Chunker
	Embedder    knowledge.Embedder
	Upserter    *knowledge.Upserter
	SpaceKey    string
	SourceType  string
	MaxParallel int
	// ReplacePages 写入前先删除各页面的既有chunk，清掉重分块后可能残留的孤儿文档
	ReplacePages bool
}

// NewPipeline 创建摄取管道
func NewPipeline(opts Options) *Pipeline {
	parallel := opts.MaxParallel
	if parallel <= 0 {
		parallel = 4
	}
	return &Pipeline{
		source:       opts.Source,
		chunker:      opts.Chunker,
		embedder:     opts.Embedder,
		upserter:     opts.Upserter,
		spaceKey:     opts.SpaceKey,
		sourceType:   opts.SourceType,
		maxParallel:  parallel,
		replacePages: opts.ReplacePages,
	}
}

// pageResult 单页处理产物。docs此时尚未填充向量，顺序与chunks一一对应
type pageResult struct {
	pageID string
	docs   []knowledge.Document
	err    error
}

// Run 执行一次全量摄取
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	refs, err := p.source.ListPageRefs(ctx, p.spaceKey)
	if err != nil {
		return stats, fmt.Errorf("list pages in space %s: %w", p.spaceKey, err)
	}
	if len(refs) == 0 {
		logger.Warn("no pages found in space", zap.String("space_key", p.spaceKey))
		return stats, nil
	}
	logger.Info("starting ingestion run",
		zap.String("space_key", p.spaceKey),
		zap.Int("pages", len(refs)),
		zap.Int("workers", p.maxParallel))

	results := p.processPages(ctx, refs)

	// 按页面遍历顺序收集，页内chunk顺序在processPage中已固定。
	// 向量化按页面分批：一个页面的批次重试耗尽只丢弃该页的chunk并记账，
	// 其余页面照常向量化并写入，绝不连坐整个运行。
	var docs []knowledge.Document
	for _, r := range results {
		if r.err != nil {
			stats.PagesFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("page %s: %v", r.pageID, r.err))
			metrics.PagesFailed.Inc()
			continue
		}
		stats.PagesProcessed++
		stats.ChunksCreated += len(r.docs)
		metrics.PagesProcessed.Inc()
		if len(r.docs) == 0 {
			continue
		}
		if err := p.embedDocuments(ctx, r.docs); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("embed page %s: %v", r.pageID, err))
			continue
		}
		docs = append(docs, r.docs...)
	}

	if len(docs) == 0 {
		logger.Warn("ingestion produced no chunks", zap.String("space_key", p.spaceKey))
		return stats, nil
	}

	if p.replacePages {
		pageIDs := make([]string, 0, stats.PagesProcessed)
		seen := map[string]bool{}
		for _, doc := range docs {
			if !seen[doc.PageID] {
				seen[doc.PageID] = true
				pageIDs = append(pageIDs, doc.PageID)
			}
		}
		for _, e := range p.upserter.PurgePages(ctx, p.sourceType, pageIDs) {
			stats.Errors = append(stats.Errors, fmt.Sprintf("purge: %v", e))
		}
	}

	written, upsertErrs := p.upserter.Run(ctx, docs)
	stats.ChunksWritten = written
	for _, e := range upsertErrs {
		stats.Errors = append(stats.Errors, fmt.Sprintf("upsert: %v", e))
	}

	logger.Info("ingestion run finished",
		zap.Int("pages_processed", stats.PagesProcessed),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("chunks_created", stats.ChunksCreated),
		zap.Int("chunks_written", stats.ChunksWritten),
		zap.Int("errors", len(stats.Errors)))
	return stats, nil
}

// processPages 固定大小的worker池并发处理页面，结果按输入顺序返回
func (p *Pipeline) processPages(ctx context.Context, refs []confluence.PageRef) []pageResult {
	results := make([]pageResult, len(refs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.maxParallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.processPage(ctx, refs[i])
			}
		}()
	}

	for i := range refs {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// processPage 抓取并分块单个页面
func (p *Pipeline) processPage(ctx context.Context, ref confluence.PageRef) pageResult {
	result := pageResult{pageID: ref.ID}

	page, err := p.source.GetPage(ctx, ref.ID, p.spaceKey)
	if err != nil {
		result.err = fmt.Errorf("fetch: %w", err)
		return result
	}

	blocks, err := confluence.ParseStorage(page.HTMLBody)
	if err != nil {
		result.err = fmt.Errorf("parse: %w", err)
		return result
	}

	chunks := p.chunker.ChunkPage(page.ID, blocks)
	if len(chunks) == 0 {
		logger.Debug("page yielded no chunks, skipping", zap.String("page_id", page.ID))
		return result
	}

	docs := make([]knowledge.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, knowledge.Document{
			ID:           chunk.ID,
			Content:      chunk.Text,
			SourceType:   p.sourceType,
			SpaceKey:     page.SpaceKey,
			PageID:       page.ID,
			PageTitle:    page.Title,
			SectionTitle: chunk.SectionTitle,
			URL:          page.URL,
			LastUpdated:  truncate(page.LastUpdated, 50),
			Version:      page.Version,
		})
	}
	result.docs = docs
	return result
}

// embedDocuments 对一个页面的chunk正文做批量向量化并就地回填
func (p *Pipeline) embedDocuments(ctx context.Context, docs []knowledge.Document) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
