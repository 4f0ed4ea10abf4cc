package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Confluence ConfluenceConfig
	Knowledge  KnowledgeConfig
	RAG        RAGConfig
	Redis      RedisConfig
	Completion CompletionConfig
}

type ServerConfig struct {
	Env string
}

// ConfluenceConfig Confluence内容源配置
type ConfluenceConfig struct {
	BaseURL     string `validate:"required,url"`
	Email       string `validate:"required"`
	APIToken    string `validate:"required"`
	SpaceKey    string `validate:"required"`
	PageLimit   int
	MaxParallel int
	RateLimit   float64 // 每秒请求数，防止触发源系统限流
}

type KnowledgeConfig struct {
	Chunking  ChunkingConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
}

// ChunkingConfig 分块参数（单位：近似token数）
type ChunkingConfig struct {
	MinTokens  int `validate:"gt=0"`
	MaxTokens  int `validate:"gt=0"`
	OverlapMin int
	OverlapMax int
}

type EmbeddingConfig struct {
	APIKey       string
	Model        string
	Dimensions   int `validate:"gt=0"`
	BatchSize    int `validate:"gt=0"`
	CacheEnabled bool
}

// IndexConfig 混合索引配置，provider: elasticsearch | composite
type IndexConfig struct {
	Provider        string `validate:"oneof=elasticsearch composite"`
	Name            string `validate:"required"`
	SkipCreate      bool
	ReplacePages    bool
	UpsertBatchSize int `validate:"gt=0"`
	Elasticsearch   ElasticsearchConfig
	Milvus          MilvusConfig
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Distance   string
	TLS        bool
}

type RedisConfig struct {
	Host string
	Port string
	DB   int
	TTL  int
}

type CompletionConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// RAGConfig 在线问答决策配置
type RAGConfig struct {
	TopK                int     `validate:"gt=0"`
	ConfidenceThreshold float64 `validate:"gte=0,lte=1"`
	SourceType          string  `validate:"required"`
	EscalationMessage   string  `validate:"required"`
	OffTopicMessage     string  `validate:"required"`
	NotFoundMessage     string  `validate:"required"`
	MaxContextChars     int     `validate:"gt=0"`
	CallTimeout         time.Duration
	Scorer              string `validate:"oneof=llm heuristic"`
}

func LoadConfig() (*Config, error) {
	// 设置默认值
	viper.SetDefault("server.env", "development")

	viper.SetDefault("confluence.page_limit", 1000)
	viper.SetDefault("confluence.max_parallel", 4)
	viper.SetDefault("confluence.rate_limit", 5.0)

	viper.SetDefault("knowledge.chunking.min_tokens", 400)
	viper.SetDefault("knowledge.chunking.max_tokens", 600)
	viper.SetDefault("knowledge.chunking.overlap_min", 50)
	viper.SetDefault("knowledge.chunking.overlap_max", 100)

	viper.SetDefault("knowledge.embedding.model", "text-embedding-3-small")
	viper.SetDefault("knowledge.embedding.dimensions", 1536)
	viper.SetDefault("knowledge.embedding.batch_size", 16)
	viper.SetDefault("knowledge.embedding.cache_enabled", false)

	viper.SetDefault("knowledge.index.provider", "elasticsearch")
	viper.SetDefault("knowledge.index.name", "confluence-chunks")
	viper.SetDefault("knowledge.index.skip_create", false)
	viper.SetDefault("knowledge.index.replace_pages", false)
	viper.SetDefault("knowledge.index.upsert_batch_size", 1000)
	viper.SetDefault("knowledge.index.elasticsearch.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("knowledge.index.milvus.address", "localhost:19530")
	viper.SetDefault("knowledge.index.milvus.database", "default")
	viper.SetDefault("knowledge.index.milvus.collection", "helpdesk_chunks")
	viper.SetDefault("knowledge.index.milvus.distance", "cosine")
	viper.SetDefault("knowledge.index.milvus.tls", false)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 86400)

	viper.SetDefault("completion.model", "gpt-4o-mini")
	viper.SetDefault("completion.max_tokens", 500)

	viper.SetDefault("rag.top_k", 5)
	viper.SetDefault("rag.confidence_threshold", 0.65)
	viper.SetDefault("rag.source_type", "confluence")
	viper.SetDefault("rag.escalation_message",
		"I couldn't find a reliable answer in the knowledge base. This issue may require creating a support ticket.")
	viper.SetDefault("rag.off_topic_message",
		"I'm the IT help desk assistant, so I can only help with IT and workplace technology questions.")
	viper.SetDefault("rag.not_found_message",
		"I couldn't find relevant information in the knowledge base. This issue may require creating a support ticket.")
	viper.SetDefault("rag.max_context_chars", 8000)
	viper.SetDefault("rag.call_timeout_seconds", 30)
	viper.SetDefault("rag.scorer", "llm")

	// 读取环境变量（HELPDESK_RAG_TOP_K 等形式）
	viper.SetEnvPrefix("HELPDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 兼容常用的裸环境变量
	if v := os.Getenv("CONFLUENCE_BASE_URL"); v != "" {
		viper.Set("confluence.base_url", v)
	}
	if v := os.Getenv("CONFLUENCE_EMAIL"); v != "" {
		viper.Set("confluence.email", v)
	}
	if v := os.Getenv("CONFLUENCE_API_TOKEN"); v != "" {
		viper.Set("confluence.api_token", v)
	}
	if v := os.Getenv("CONFLUENCE_SPACE_KEY"); v != "" {
		viper.Set("confluence.space_key", v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		viper.Set("knowledge.embedding.api_key", v)
		viper.Set("completion.api_key", v)
	}
	if v := os.Getenv("ELASTICSEARCH_URL"); v != "" {
		viper.Set("knowledge.index.elasticsearch.addresses", []string{v})
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		viper.Set("redis.host", v)
	}

	cfg := &Config{
		Server: ServerConfig{
			Env: viper.GetString("server.env"),
		},
		Confluence: ConfluenceConfig{
			BaseURL:     viper.GetString("confluence.base_url"),
			Email:       viper.GetString("confluence.email"),
			APIToken:    viper.GetString("confluence.api_token"),
			SpaceKey:    viper.GetString("confluence.space_key"),
			PageLimit:   viper.GetInt("confluence.page_limit"),
			MaxParallel: viper.GetInt("confluence.max_parallel"),
			RateLimit:   viper.GetFloat64("confluence.rate_limit"),
		},
		Knowledge: KnowledgeConfig{
			Chunking: ChunkingConfig{
				MinTokens:  viper.GetInt("knowledge.chunking.min_tokens"),
				MaxTokens:  viper.GetInt("knowledge.chunking.max_tokens"),
				OverlapMin: viper.GetInt("knowledge.chunking.overlap_min"),
				OverlapMax: viper.GetInt("knowledge.chunking.overlap_max"),
			},
			Embedding: EmbeddingConfig{
				APIKey:       viper.GetString("knowledge.embedding.api_key"),
				Model:        viper.GetString("knowledge.embedding.model"),
				Dimensions:   viper.GetInt("knowledge.embedding.dimensions"),
				BatchSize:    viper.GetInt("knowledge.embedding.batch_size"),
				CacheEnabled: viper.GetBool("knowledge.embedding.cache_enabled"),
			},
			Index: IndexConfig{
				Provider:        viper.GetString("knowledge.index.provider"),
				Name:            viper.GetString("knowledge.index.name"),
				SkipCreate:      viper.GetBool("knowledge.index.skip_create"),
				ReplacePages:    viper.GetBool("knowledge.index.replace_pages"),
				UpsertBatchSize: viper.GetInt("knowledge.index.upsert_batch_size"),
				Elasticsearch: ElasticsearchConfig{
					Addresses: viper.GetStringSlice("knowledge.index.elasticsearch.addresses"),
					Username:  viper.GetString("knowledge.index.elasticsearch.username"),
					Password:  viper.GetString("knowledge.index.elasticsearch.password"),
					APIKey:    viper.GetString("knowledge.index.elasticsearch.api_key"),
				},
				Milvus: MilvusConfig{
					Address:    viper.GetString("knowledge.index.milvus.address"),
					Username:   viper.GetString("knowledge.index.milvus.username"),
					Password:   viper.GetString("knowledge.index.milvus.password"),
					Database:   viper.GetString("knowledge.index.milvus.database"),
					Collection: viper.GetString("knowledge.index.milvus.collection"),
					Distance:   viper.GetString("knowledge.index.milvus.distance"),
					TLS:        viper.GetBool("knowledge.index.milvus.tls"),
				},
			},
		},
		Redis: RedisConfig{
			Host: viper.GetString("redis.host"),
			Port: viper.GetString("redis.port"),
			DB:   viper.GetInt("redis.db"),
			TTL:  viper.GetInt("redis.ttl"),
		},
		Completion: CompletionConfig{
			APIKey:    viper.GetString("completion.api_key"),
			Model:     viper.GetString("completion.model"),
			BaseURL:   viper.GetString("completion.base_url"),
			MaxTokens: viper.GetInt("completion.max_tokens"),
		},
		RAG: RAGConfig{
			TopK:                viper.GetInt("rag.top_k"),
			ConfidenceThreshold: viper.GetFloat64("rag.confidence_threshold"),
			SourceType:          viper.GetString("rag.source_type"),
			EscalationMessage:   viper.GetString("rag.escalation_message"),
			OffTopicMessage:     viper.GetString("rag.off_topic_message"),
			NotFoundMessage:     viper.GetString("rag.not_found_message"),
			MaxContextChars:     viper.GetInt("rag.max_context_chars"),
			CallTimeout:         time.Duration(viper.GetInt("rag.call_timeout_seconds")) * time.Second,
			Scorer:              viper.GetString("rag.scorer"),
		},
	}

	if cfg.Knowledge.Chunking.MaxTokens <= cfg.Knowledge.Chunking.MinTokens {
		return nil, fmt.Errorf("chunking max_tokens (%d) must be greater than min_tokens (%d)",
			cfg.Knowledge.Chunking.MaxTokens, cfg.Knowledge.Chunking.MinTokens)
	}

	return cfg, nil
}

// Validate 校验配置完整性（ingestion等需要全量配置的入口调用）
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
