package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(id string, score float64) ScoredDocument {
	return ScoredDocument{Document: Document{ID: id, Content: "content " + id}, Score: score}
}

// TestMergeResultsWeightedFusion 测试两路结果归一化加权融合
func TestMergeResultsWeightedFusion(t *testing.T) {
	c := NewCompositeIndex(nil, nil)

	vector := []ScoredDocument{scored("a", 0.9), scored("b", 0.45)}
	keyword := []ScoredDocument{scored("c", 12.0), scored("a", 6.0)}

	merged := c.mergeResults(vector, keyword)
	require.Len(t, merged, 3)

	// a: 向量归一1.0*0.6 + 关键词归一0.5*0.4 = 0.8，两路命中排第一
	assert.Equal(t, "a", merged[0].ID)
	assert.InDelta(t, 0.8, merged[0].Score, 1e-9)

	// c: 仅关键词 1.0*0.4 = 0.4；b: 仅向量 0.5*0.6 = 0.3
	assert.Equal(t, "c", merged[1].ID)
	assert.InDelta(t, 0.4, merged[1].Score, 1e-9)
	assert.Equal(t, "b", merged[2].ID)
	assert.InDelta(t, 0.3, merged[2].Score, 1e-9)
}

// TestMergeResultsSingleSide 测试单路结果直接归一化输出
func TestMergeResultsSingleSide(t *testing.T) {
	c := NewCompositeIndex(nil, nil)

	merged := c.mergeResults([]ScoredDocument{scored("a", 2.0), scored("b", 1.0)}, nil)
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].ID)
	assert.InDelta(t, 0.6, merged[0].Score, 1e-9)
	assert.InDelta(t, 0.3, merged[1].Score, 1e-9)
}

// TestMergeResultsEmpty 测试两路皆空
func TestMergeResultsEmpty(t *testing.T) {
	c := NewCompositeIndex(nil, nil)
	assert.Empty(t, c.mergeResults(nil, nil))
}

// TestMergeResultsDedup 测试同id文档只出现一次
func TestMergeResultsDedup(t *testing.T) {
	c := NewCompositeIndex(nil, nil)
	merged := c.mergeResults(
		[]ScoredDocument{scored("a", 1.0)},
		[]ScoredDocument{scored("a", 5.0)},
	)
	require.Len(t, merged, 1)
	assert.InDelta(t, 1.0, merged[0].Score, 1e-9)
}
