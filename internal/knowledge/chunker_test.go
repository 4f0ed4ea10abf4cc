package knowledge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/confluence"
)

func testChunker() *Chunker {
	return NewChunker(config.ChunkingConfig{
		MinTokens:  40,
		MaxTokens:  60,
		OverlapMin: 5,
		OverlapMax: 10,
	})
}

// words 生成指定词数的测试文本
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%04d", i)
	}
	return strings.Join(parts, " ")
}

// TestChunkPageEmpty 测试空页面返回nil而非错误
func TestChunkPageEmpty(t *testing.T) {
	c := testChunker()
	assert.Nil(t, c.ChunkPage("p1", nil))
	assert.Nil(t, c.ChunkPage("p1", []confluence.Block{{Text: "   "}}))
}

// TestChunkPageStableIDs 测试同一输入重复分块得到完全一致的(ID, Text)序列
func TestChunkPageStableIDs(t *testing.T) {
	c := testChunker()
	blocks := []confluence.Block{
		{HeadingPath: []string{"VPN"}, Text: words(30)},
		{HeadingPath: []string{"VPN", "Setup"}, Text: words(200)},
	}

	first := c.ChunkPage("12345", blocks)
	second := c.ChunkPage("12345", blocks)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, i, first[i].Ordinal)
	}
}

// TestChunkIDFormat 测试chunk id格式：页面id前缀 + 16位哈希 + 序号
func TestChunkIDFormat(t *testing.T) {
	id := chunkID("12345", []string{"VPN", "Setup"}, 2)
	parts := strings.Split(id, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "12345", parts[0])
	assert.Len(t, parts[1], 16)
	assert.Equal(t, "2", parts[2])

	// 标题路径不同则哈希不同
	other := chunkID("12345", []string{"VPN"}, 2)
	assert.NotEqual(t, id, other)
}

// TestChunkPageSizeBounds 测试超限小节被切分且每块不超上限
func TestChunkPageSizeBounds(t *testing.T) {
	c := testChunker()
	blocks := []confluence.Block{
		{HeadingPath: []string{"Guide"}, Text: words(400)},
	}

	chunks := c.ChunkPage("p1", blocks)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 60, "chunk %d exceeds max tokens", chunk.Ordinal)
		assert.Equal(t, "Guide", chunk.SectionTitle)
	}
}

// TestSplitOverlap 测试切分后相邻块携带词级重叠
func TestSplitOverlap(t *testing.T) {
	c := testChunker()
	chunks := c.splitWithOverlap(words(300), "", nil)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		tail := prevWords[len(prevWords)-1]
		assert.Contains(t, chunks[i].Text, tail,
			"chunk %d should start with overlap from chunk %d", i, i-1)
	}
}

// TestMergeSmall 测试相邻小块在同一或嵌套小节内合并
func TestMergeSmall(t *testing.T) {
	c := testChunker()
	blocks := []confluence.Block{
		{HeadingPath: []string{"FAQ"}, Text: words(8)},
		{HeadingPath: []string{"FAQ", "Login"}, Text: words(8)},
	}

	chunks := c.ChunkPage("p1", blocks)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "word0000")
	assert.Contains(t, chunks[0].SectionTitle, "FAQ")
}

// TestMergeSmallKeepsUnrelatedSections 测试不同顶级小节的小块不跨节合并
func TestMergeSmallKeepsUnrelatedSections(t *testing.T) {
	c := NewChunker(config.ChunkingConfig{MinTokens: 400, MaxTokens: 600, OverlapMin: 50, OverlapMax: 100})
	blocks := []confluence.Block{
		{HeadingPath: []string{"VPN"}, Text: words(30)},
		{HeadingPath: []string{"Printers"}, Text: words(30)},
	}

	chunks := c.ChunkPage("p1", blocks)
	require.Len(t, chunks, 2)
	assert.Equal(t, "VPN", chunks[0].SectionTitle)
	assert.Equal(t, "Printers", chunks[1].SectionTitle)
}

// TestChunkTextIncludesSectionTitle 测试小节标题并入块正文
func TestChunkTextIncludesSectionTitle(t *testing.T) {
	c := testChunker()
	blocks := []confluence.Block{
		{HeadingPath: []string{"Reset Password"}, Text: words(12)},
	}
	chunks := c.ChunkPage("p1", blocks)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Reset Password\n\n"))
}

// TestCountTokens 测试近似token计数
func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 1, CountTokens("ab"))
	assert.Equal(t, 10, CountTokens(strings.Repeat("a", 40)))
}

func TestSameOrNested(t *testing.T) {
	assert.True(t, sameOrNested(nil, nil))
	assert.True(t, sameOrNested([]string{"A"}, []string{"A", "B"}))
	assert.True(t, sameOrNested([]string{"A", "B"}, []string{"A"}))
	assert.False(t, sameOrNested([]string{"A"}, []string{"B"}))
}
