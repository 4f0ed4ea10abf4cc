package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/cavco/helpdesk-go/internal/config"
)

// MilvusStore composite索引的向量侧：ANN检索走Milvus，主键取chunk id，
// Upsert按主键整条替换保证幂等
type MilvusStore struct {
	milvusClient client.Client
	collection   string
	distance     entity.MetricType
	vectorSize   int
}

// NewMilvusStore 创建Milvus向量存储
func NewMilvusStore(cfg config.MilvusConfig, dimensions int) (*MilvusStore, error) {
	address := cfg.Address
	if address == "" {
		address = "localhost:19530"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "helpdesk_chunks"
	}
	database := cfg.Database
	if database == "" {
		database = "default"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}

	milvusClient, err := client.NewClient(context.Background(), client.Config{
		Address:       address,
		DBName:        database,
		Username:      cfg.Username,
		Password:      cfg.Password,
		EnableTLSAuth: cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &MilvusStore{
		milvusClient: milvusClient,
		collection:   collection,
		distance:     formatMilvusDistance(cfg.Distance),
		vectorSize:   dimensions,
	}, nil
}

func formatMilvusDistance(value string) entity.MetricType {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return entity.IP
	case "L2", "EUCLIDEAN":
		return entity.L2
	default:
		return entity.COSINE
	}
}

// EnsureCollection 集合不存在时创建schema和HNSW索引
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	has, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Help desk knowledge base chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "source_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "page_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "page_title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "section_title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "url",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorSize),
				},
			},
		},
	}
	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	index, err := entity.NewIndexHNSW(s.distance, 8, 64)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Upsert 按主键写入一批chunk向量
func (s *MilvusStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	sourceTypes := make([]string, len(docs))
	pageIDs := make([]string, len(docs))
	pageTitles := make([]string, len(docs))
	sectionTitles := make([]string, len(docs))
	urls := make([]string, len(docs))
	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) != s.vectorSize {
			return fmt.Errorf("document %s has vector of %d dimensions, index expects %d",
				doc.ID, len(doc.Embedding), s.vectorSize)
		}
		ids[i] = doc.ID
		contents[i] = doc.Content
		sourceTypes[i] = doc.SourceType
		pageIDs[i] = doc.PageID
		pageTitles[i] = doc.PageTitle
		sectionTitles[i] = doc.SectionTitle
		urls[i] = doc.URL
		vectors[i] = doc.Embedding
	}

	_, err := s.milvusClient.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("source_type", sourceTypes),
		entity.NewColumnVarChar("page_id", pageIDs),
		entity.NewColumnVarChar("page_title", pageTitles),
		entity.NewColumnVarChar("section_title", sectionTitles),
		entity.NewColumnVarChar("url", urls),
		entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	return nil
}

// DeleteByExpr 按布尔表达式删除
func (s *MilvusStore) DeleteByExpr(ctx context.Context, expr string) error {
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

func filterExpr(f *Filter) string {
	if f == nil {
		return ""
	}
	var parts []string
	if f.SourceType != "" {
		parts = append(parts, fmt.Sprintf(`source_type == "%s"`, f.SourceType))
	}
	if f.PageID != "" {
		parts = append(parts, fmt.Sprintf(`page_id == "%s"`, f.PageID))
	}
	return strings.Join(parts, " && ")
}

// Search 向量近邻检索
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, f *Filter) ([]ScoredDocument, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	results, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		filterExpr(f),
		[]string{"content", "source_type", "page_id", "page_title", "section_title", "url"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		s.distance,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	result := results[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var ids []string
	if col, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = col.Data()
	}
	fieldData := func(name string) []string {
		for _, field := range result.Fields {
			if field.Name() == name {
				if col, ok := field.(*entity.ColumnVarChar); ok {
					return col.Data()
				}
			}
		}
		return nil
	}
	contents := fieldData("content")
	sourceTypes := fieldData("source_type")
	pageIDs := fieldData("page_id")
	pageTitles := fieldData("page_title")
	sectionTitles := fieldData("section_title")
	urls := fieldData("url")

	at := func(values []string, i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}

	docs := make([]ScoredDocument, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = similarityScore(s.distance, result.Scores[i])
		}
		docs = append(docs, ScoredDocument{
			Document: Document{
				ID:           at(ids, i),
				Content:      at(contents, i),
				SourceType:   at(sourceTypes, i),
				PageID:       at(pageIDs, i),
				PageTitle:    at(pageTitles, i),
				SectionTitle: at(sectionTitles, i),
				URL:          at(urls, i),
			},
			Score: score,
		})
	}
	return docs, nil
}

// similarityScore 把Milvus原始分数统一成越大越相似。L2返回的是距离，
// 取1/(1+d)翻转方向，下游融合排序才不会颠倒向量侧
func similarityScore(metric entity.MetricType, raw float32) float64 {
	if metric == entity.L2 {
		return 1 / (1 + float64(raw))
	}
	return float64(raw)
}

func (s *MilvusStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
