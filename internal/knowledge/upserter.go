package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/logger"
	"github.com/cavco/helpdesk-go/internal/metrics"
)

// Upserter 把chunk文档按固定子批提交到混合索引。
// 交付语义是至少一次：子批失败独立重试、独立上报，不会连坐整个运行，
// 也不会破坏已提交的子批。
type Upserter struct {
	index      HybridIndex
	batchSize  int
	skipSchema bool
	dimensions int
}

// NewUpserter 创建索引写入器。skipSchema为true时跳过建索引（操作者无索引管理权限、
// 索引已预建的场景）。
func NewUpserter(index HybridIndex, batchSize int, skipSchema bool, dimensions int) *Upserter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Upserter{
		index:      index,
		batchSize:  batchSize,
		skipSchema: skipSchema,
		dimensions: dimensions,
	}
}

// PurgePages 删除一组页面的既有chunk。页面重摄取后chunk数可能变少，
// 不先清理会留下孤儿文档。单页删除失败不中断，返回收集到的错误。
func (u *Upserter) PurgePages(ctx context.Context, sourceType string, pageIDs []string) []error {
	var errs []error
	for _, pageID := range pageIDs {
		err := u.index.DeleteByFilter(ctx, Filter{SourceType: sourceType, PageID: pageID})
		if err != nil {
			errs = append(errs, fmt.Errorf("purge page %s: %w", pageID, err))
			continue
		}
		logger.Debug("purged stale chunks", zap.String("page_id", pageID))
	}
	return errs
}

// Run 写入全部文档，返回成功条数和每个失败子批的错误
func (u *Upserter) Run(ctx context.Context, docs []Document) (int, []error) {
	if len(docs) == 0 {
		return 0, nil
	}

	if !u.skipSchema {
		if err := u.index.EnsureSchema(ctx, u.dimensions); err != nil {
			return 0, []error{fmt.Errorf("ensure schema: %w", err)}
		}
	} else {
		logger.Info("skipping index schema creation, index assumed to pre-exist")
	}

	written := 0
	var errs []error
	for start := 0; start < len(docs); start += u.batchSize {
		end := start + u.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		err := retry.Do(
			func() error { return u.index.Upsert(ctx, batch) },
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.OnRetry(func(n uint, err error) {
				logger.Warn("index sub-batch retry",
					zap.Int("start", start), zap.Uint("attempt", n), zap.Error(err))
			}),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("sub-batch %d-%d: %w", start, end, err))
			continue
		}
		written += len(batch)
		metrics.ChunksWritten.Add(float64(len(batch)))
		logger.Debug("upserted sub-batch", zap.Int("start", start), zap.Int("count", len(batch)))
	}
	return written, errs
}
