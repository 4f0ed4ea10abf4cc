package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerateEmptyChunksSkipsLLM 测试零命中时直接返回找不到，不发起生成调用
func TestGenerateEmptyChunksSkipsLLM(t *testing.T) {
	llm := &scriptedLLM{response: "should not be called"}
	g := NewAnswerGenerator(llm, "not found message", 8000, 500)

	answer, err := g.Generate(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, "not found message", answer)
	assert.Zero(t, llm.calls)
}

// TestGenerate 测试正常生成
func TestGenerate(t *testing.T) {
	llm := &scriptedLLM{response: "1. Open the client.\n2. Connect."}
	g := NewAnswerGenerator(llm, "not found", 8000, 500)

	answer, err := g.Generate(context.Background(), "how to connect vpn", sampleChunks())
	require.NoError(t, err)
	assert.Equal(t, "1. Open the client.\n2. Connect.", answer)
	assert.Equal(t, 1, llm.calls)
}

// TestGenerateError 测试生成失败向上返回错误
func TestGenerateError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("api down")}
	g := NewAnswerGenerator(llm, "not found", 8000, 500)

	_, err := g.Generate(context.Background(), "q", sampleChunks())
	require.Error(t, err)
}
