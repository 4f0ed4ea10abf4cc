package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/cavco/helpdesk-go/internal/config"
)

// ElasticIndex 单索引混合检索实现：正文与dense_vector存在同一个索引，
// 一次请求同时下发knn和BM25查询，融合排序由ES完成。
type ElasticIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewElasticIndex 创建ES混合索引
func NewElasticIndex(cfg config.ElasticsearchConfig, indexName string) (*ElasticIndex, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses not configured")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	if indexName == "" {
		indexName = "confluence-chunks"
	}
	return &ElasticIndex{client: client, indexName: indexName}, nil
}

func (e *ElasticIndex) EnsureSchema(ctx context.Context, dimensions int) error {
	existsReq := esapi.IndicesExistsRequest{Index: []string{e.indexName}}
	resp, err := existsReq.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"content": map[string]interface{}{"type": "text"},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dimensions,
					"index":      true,
					"similarity": "cosine",
				},
				"source_type":   map[string]interface{}{"type": "keyword"},
				"space_key":     map[string]interface{}{"type": "keyword"},
				"page_id":       map[string]interface{}{"type": "keyword"},
				"page_title":    map[string]interface{}{"type": "text"},
				"section_title": map[string]interface{}{"type": "keyword"},
				"url":           map[string]interface{}{"type": "keyword"},
				"last_updated":  map[string]interface{}{"type": "keyword"},
				"version":       map[string]interface{}{"type": "integer"},
			},
		},
	}
	body, _ := json.Marshal(mapping)
	createReq := esapi.IndicesCreateRequest{
		Index: e.indexName,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createResp.Body.Close()
	if createResp.IsError() {
		return fmt.Errorf("create index error: %s", createResp.String())
	}
	return nil
}

// Upsert 批量写入，_id取chunk id，index动作整条替换，天然幂等
func (e *ElasticIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": e.indexName, "_id": doc.ID},
		}
		line, _ := json.Marshal(meta)
		buf.Write(line)
		buf.WriteByte('\n')
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
		}
		buf.Write(payload)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("bulk upsert failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("bulk upsert error: %s", resp.String())
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if result.Errors {
		var failed []string
		for _, item := range result.Items {
			for _, op := range item {
				if op.Error != nil {
					failed = append(failed, fmt.Sprintf("%s: %s", op.ID, op.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk upsert had %d failed documents: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func filterClauses(f *Filter) []interface{} {
	if f == nil {
		return nil
	}
	var clauses []interface{}
	if f.SourceType != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"source_type": f.SourceType},
		})
	}
	if f.SpaceKey != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"space_key": f.SpaceKey},
		})
	}
	if f.PageID != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"page_id": f.PageID},
		})
	}
	return clauses
}

// Search 混合检索：knn子句负责向量近邻，match子句负责关键词，
// ES对两路得分求和，结果即最终排序
func (e *ElasticIndex) Search(ctx context.Context, req SearchRequest) ([]ScoredDocument, error) {
	if req.TopK <= 0 {
		req.TopK = 5
	}
	filters := filterClauses(req.Filter)

	body := map[string]interface{}{
		"size":    req.TopK,
		"_source": true,
	}
	if len(req.QueryVector) > 0 {
		knn := map[string]interface{}{
			"field":          "embedding",
			"query_vector":   req.QueryVector,
			"k":              req.TopK,
			"num_candidates": req.TopK * 10,
		}
		if len(filters) > 0 {
			knn["filter"] = filters
		}
		body["knn"] = knn
	}
	if req.QueryText != "" {
		boolQuery := map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{
					"match": map[string]interface{}{
						"content": map[string]interface{}{"query": req.QueryText},
					},
				},
			},
		}
		if len(filters) > 0 {
			boolQuery["filter"] = filters
		}
		body["query"] = map[string]interface{}{"bool": boolQuery}
	}

	return e.doSearch(ctx, body)
}

// searchKeyword 纯关键词检索，供composite适配器融合用
func (e *ElasticIndex) searchKeyword(ctx context.Context, queryText string, topK int, f *Filter) ([]ScoredDocument, error) {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"match": map[string]interface{}{
					"content": map[string]interface{}{"query": queryText},
				},
			},
		},
	}
	if filters := filterClauses(f); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	body := map[string]interface{}{
		"size":  topK,
		"query": map[string]interface{}{"bool": boolQuery},
	}
	return e.doSearch(ctx, body)
}

func (e *ElasticIndex) doSearch(ctx context.Context, body map[string]interface{}) ([]ScoredDocument, error) {
	payload, _ := json.Marshal(body)
	req := esapi.SearchRequest{
		Index: []string{e.indexName},
		Body:  bytes.NewReader(payload),
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]ScoredDocument, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		doc := hit.Source
		if doc.ID == "" {
			doc.ID = hit.ID
		}
		docs = append(docs, ScoredDocument{Document: doc, Score: hit.Score})
	}
	return docs, nil
}

func (e *ElasticIndex) DeleteByFilter(ctx context.Context, f Filter) error {
	filters := filterClauses(&f)
	if len(filters) == 0 {
		return fmt.Errorf("refusing to delete with empty filter")
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
	}
	payload, _ := json.Marshal(body)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.indexName},
		Body:  bytes.NewReader(payload),
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("delete by query error: %s", resp.String())
	}
	return nil
}

func (e *ElasticIndex) Ready() bool {
	if e.client == nil {
		return false
	}
	resp, err := e.client.Ping()
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}
