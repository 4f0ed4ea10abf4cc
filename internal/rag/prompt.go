package rag

import (
	"fmt"
	"strings"
)

// BuildContextBlock 把命中chunk拼成提示词上下文。超出预算时从排名最低的
// 开始整块丢弃，绝不截断到半个chunk，残缺上下文比缺上下文更危险。
func BuildContextBlock(chunks []RetrievedChunk, maxChars int) string {
	if len(chunks) == 0 {
		return "(No relevant documents found in the knowledge base.)"
	}

	var parts []string
	used := 0
	for i, chunk := range chunks {
		title := chunk.PageTitle
		if title == "" {
			title = chunk.PageID
		}
		header := fmt.Sprintf("--- Document %d: %s", i+1, title)
		if chunk.SectionTitle != "" {
			header += fmt.Sprintf(" [%s]", chunk.SectionTitle)
		}
		header += " ---"
		part := header + "\n" + chunk.Content

		cost := len(part)
		if len(parts) > 0 {
			cost += len("\n\n")
		}
		if maxChars > 0 && used+cost > maxChars {
			break
		}
		parts = append(parts, part)
		used += cost
	}

	if len(parts) == 0 {
		// 单个chunk都放不下：返回固定占位说明，让模型按信息不足处理
		return "(Context omitted: retrieved documents exceed the context budget.)"
	}
	return strings.Join(parts, "\n\n")
}

// BuildRAGPrompt 构造RAG回答的(system, user)提示词对
func BuildRAGPrompt(userQuery string, chunks []RetrievedChunk, maxChars int) (string, string) {
	context := BuildContextBlock(chunks, maxChars)
	userMessage := fmt.Sprintf(ragUserTemplate, context, strings.TrimSpace(userQuery))
	return ragSystemPrompt, userMessage
}
