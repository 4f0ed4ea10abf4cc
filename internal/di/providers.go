package di

import (
	"fmt"

	"go.uber.org/dig"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/confluence"
	"github.com/cavco/helpdesk-go/internal/ingest"
	"github.com/cavco/helpdesk-go/internal/knowledge"
	"github.com/cavco/helpdesk-go/internal/rag"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	// 注册配置
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return err
	}

	// 注册Confluence客户端
	if err := container.Provide(func(cfg *config.Config) *confluence.Client {
		return confluence.NewClient(cfg.Confluence)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(client *confluence.Client) ingest.PageSource {
		return client
	}); err != nil {
		return err
	}

	// 注册向量化器（按配置决定是否套Redis缓存）
	if err := container.Provide(func(cfg *config.Config) (knowledge.Embedder, error) {
		embedder, err := knowledge.NewOpenAIEmbedder(cfg.Knowledge.Embedding)
		if err != nil {
			return nil, err
		}
		if cfg.Knowledge.Embedding.CacheEnabled {
			return knowledge.NewCachedEmbedder(embedder, cfg.Knowledge.Embedding.Model, cfg.Redis), nil
		}
		return embedder, nil
	}); err != nil {
		return err
	}

	// 注册混合索引（elasticsearch单体或elasticsearch+milvus组合）
	if err := container.Provide(func(cfg *config.Config) (knowledge.HybridIndex, error) {
		es, err := knowledge.NewElasticIndex(cfg.Knowledge.Index.Elasticsearch, cfg.Knowledge.Index.Name)
		if err != nil {
			return nil, err
		}
		switch cfg.Knowledge.Index.Provider {
		case "elasticsearch":
			return es, nil
		case "composite":
			milvus, err := knowledge.NewMilvusStore(cfg.Knowledge.Index.Milvus, cfg.Knowledge.Embedding.Dimensions)
			if err != nil {
				return nil, err
			}
			return knowledge.NewCompositeIndex(es, milvus), nil
		default:
			return nil, fmt.Errorf("unknown index provider: %s", cfg.Knowledge.Index.Provider)
		}
	}); err != nil {
		return err
	}

	// 注册摄取侧组件
	if err := container.Provide(func(cfg *config.Config) *knowledge.Chunker {
		return knowledge.NewChunker(cfg.Knowledge.Chunking)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, index knowledge.HybridIndex) *knowledge.Upserter {
		return knowledge.NewUpserter(index,
			cfg.Knowledge.Index.UpsertBatchSize,
			cfg.Knowledge.Index.SkipCreate,
			cfg.Knowledge.Embedding.Dimensions)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		source ingest.PageSource,
		chunker *knowledge.Chunker,
		embedder knowledge.Embedder,
		upserter *knowledge.Upserter,
	) *ingest.Pipeline {
		return ingest.NewPipeline(ingest.Options{
			Source:       source,
			Chunker:      chunker,
			Embedder:     embedder,
			Upserter:     upserter,
			SpaceKey:     cfg.Confluence.SpaceKey,
			SourceType:   cfg.RAG.SourceType,
			MaxParallel:  cfg.Confluence.MaxParallel,
			ReplacePages: cfg.Knowledge.Index.ReplacePages,
		})
	}); err != nil {
		return err
	}

	// 注册在线问答组件
	if err := container.Provide(func(cfg *config.Config) (rag.CompletionClient, error) {
		return rag.NewOpenAICompletion(cfg.Completion)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(llm rag.CompletionClient) *rag.IntentClassifier {
		return rag.NewIntentClassifier(llm)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, embedder knowledge.Embedder, index knowledge.HybridIndex) (*rag.Retriever, error) {
		return rag.NewRetriever(embedder, index, cfg.RAG.SourceType)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, llm rag.CompletionClient) *rag.AnswerGenerator {
		return rag.NewAnswerGenerator(llm, cfg.RAG.NotFoundMessage, cfg.RAG.MaxContextChars, cfg.Completion.MaxTokens)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, llm rag.CompletionClient) rag.ConfidenceScorer {
		if cfg.RAG.Scorer == "heuristic" {
			return rag.NewHeuristicScorer()
		}
		return rag.NewLLMScorer(llm)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		classifier *rag.IntentClassifier,
		retriever *rag.Retriever,
		generator *rag.AnswerGenerator,
		scorer rag.ConfidenceScorer,
		llm rag.CompletionClient,
	) *rag.ChatService {
		return rag.NewChatService(classifier, retriever, generator, scorer, llm, &cfg.RAG)
	}); err != nil {
		return err
	}

	return nil
}
