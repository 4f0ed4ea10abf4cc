package knowledge

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavco/helpdesk-go/internal/config"
)

// fakeEmbeddingAPI 记录批次并按请求顺序返回可预测向量
type fakeEmbeddingAPI struct {
	batches [][]string
	reverse bool // 反序返回Data，验证index对齐
	short   bool // 少返回一条，验证1:1校验
	err     error
}

func (f *fakeEmbeddingAPI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	req := conv.Convert()
	inputs := req.Input.([]string)
	f.batches = append(f.batches, inputs)

	var resp openai.EmbeddingResponse
	for i := range inputs {
		resp.Data = append(resp.Data, openai.Embedding{
			Index:     i,
			Embedding: []float32{float32(len(f.batches)), float32(i)},
		})
	}
	if f.reverse {
		for i, j := 0, len(resp.Data)-1; i < j; i, j = i+1, j-1 {
			resp.Data[i], resp.Data[j] = resp.Data[j], resp.Data[i]
		}
	}
	if f.short && len(resp.Data) > 0 {
		resp.Data = resp.Data[:len(resp.Data)-1]
	}
	return resp, nil
}

func testEmbedder(api embeddingAPI, batchSize int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: api, model: "test-model", dimensions: 2, batchSize: batchSize}
}

// TestEmbedBatchSplitsIntoBatches 测试按批大小分批提交且结果顺序与输入一致
func TestEmbedBatchSplitsIntoBatches(t *testing.T) {
	fake := &fakeEmbeddingAPI{}
	e := testEmbedder(fake, 2)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	require.Len(t, fake.batches, 3)
	assert.Equal(t, []string{"a", "b"}, fake.batches[0])
	assert.Equal(t, []string{"c", "d"}, fake.batches[1])
	assert.Equal(t, []string{"e"}, fake.batches[2])

	// 批内第二条的向量尾值为1
	assert.Equal(t, float32(1), vectors[1][1])
	assert.Equal(t, float32(0), vectors[4][1])
}

// TestEmbedBatchIndexAlignment 测试响应乱序时按index重排
func TestEmbedBatchIndexAlignment(t *testing.T) {
	fake := &fakeEmbeddingAPI{reverse: true}
	e := testEmbedder(fake, 4)

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[1], "vector %d misaligned", i)
	}
}

// TestEmbedBatchCountMismatch 测试响应条数不匹配时整体报错
func TestEmbedBatchCountMismatch(t *testing.T) {
	fake := &fakeEmbeddingAPI{short: true}
	e := testEmbedder(fake, 4)

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 items for 2 inputs")
}

// TestEmbedBatchEmptyInput 测试空输入报错
func TestEmbedBatchEmptyInput(t *testing.T) {
	e := testEmbedder(&fakeEmbeddingAPI{}, 4)
	_, err := e.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
}

// TestEmbedQuery 测试单条查询向量化
func TestEmbedQuery(t *testing.T) {
	e := testEmbedder(&fakeEmbeddingAPI{}, 4)
	v, err := e.EmbedQuery(context.Background(), "how do I reset my password")
	require.NoError(t, err)
	assert.Len(t, v, 2)
}

// TestNewOpenAIEmbedderRequiresKey 测试缺少api key时拒绝创建
func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(config.EmbeddingConfig{Model: "test-model"})
	require.Error(t, err)
}
