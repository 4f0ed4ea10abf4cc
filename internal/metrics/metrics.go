package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 离线摄取指标
var (
	PagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_ingest_pages_processed_total",
		Help: "Number of pages fetched and chunked successfully",
	})

	PagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_ingest_pages_failed_total",
		Help: "Number of pages that failed to fetch or parse",
	})

	ChunksWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_ingest_chunks_written_total",
		Help: "Number of chunks upserted into the search index",
	})

	EmbeddingBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_embedding_batches_total",
		Help: "Embedding batches by outcome",
	}, []string{"outcome"})
)

// 在线决策指标
var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_chat_decisions_total",
		Help: "Chat decisions by answer type",
	}, []string{"answer_type"})

	ConfidenceScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "helpdesk_chat_confidence_score",
		Help:    "Distribution of confidence scores on the RAG path",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)
