package rag

import (
	"context"
	"fmt"
)

// AnswerGenerator 基于检索上下文生成回答。回答只能来自上下文，
// 不允许依赖模型先验知识；检索为空时直接返回找不到，不发起生成调用。
type AnswerGenerator struct {
	llm             CompletionClient
	notFoundMessage string
	maxContextChars int
	maxTokens       int
}

// NewAnswerGenerator 创建答案生成器
func NewAnswerGenerator(llm CompletionClient, notFoundMessage string, maxContextChars, maxTokens int) *AnswerGenerator {
	if maxContextChars <= 0 {
		maxContextChars = 8000
	}
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &AnswerGenerator{
		llm:             llm,
		notFoundMessage: notFoundMessage,
		maxContextChars: maxContextChars,
		maxTokens:       maxTokens,
	}
}

// Generate 生成上下文受限的回答
func (g *AnswerGenerator) Generate(ctx context.Context, userQuery string, chunks []RetrievedChunk) (string, error) {
	if len(chunks) == 0 {
		return g.notFoundMessage, nil
	}

	systemPrompt, userMessage := BuildRAGPrompt(userQuery, chunks, g.maxContextChars)
	messages := []ChatMessage{{Role: "user", Content: userMessage}}

	// 低温度，要的是贴合上下文的事实性回答
	answer, err := g.llm.Complete(ctx, systemPrompt, messages, 0.3, g.maxTokens)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return answer, nil
}
