package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/logger"
)

var validIntents = []Intent{IntentGeneric, IntentDomainSpecific, IntentOffTopic, IntentUnknown}

// IntentClassifier 用一次零温度补全调用给查询打意图标签。
// 解析不出合法标签一律归为UNKNOWN，宁可多走一次检索，也不放任无上下文生成。
type IntentClassifier struct {
	llm CompletionClient
}

// NewIntentClassifier 创建意图分类器
func NewIntentClassifier(llm CompletionClient) *IntentClassifier {
	return &IntentClassifier{llm: llm}
}

// Classify 对单条用户消息做无状态分类
func (c *IntentClassifier) Classify(ctx context.Context, userQuery string) (Intent, error) {
	query := strings.TrimSpace(userQuery)
	if query == "" {
		return IntentUnknown, nil
	}

	messages := []ChatMessage{
		{Role: "user", Content: fmt.Sprintf(intentUserTemplate, query)},
	}
	// 温度0，分类要的是稳定不是创意
	response, err := c.llm.Complete(ctx, intentSystemPrompt, messages, 0, 20)
	if err != nil {
		return IntentUnknown, fmt.Errorf("intent classification call failed: %w", err)
	}

	return ParseIntent(response), nil
}

// ParseIntent 宽容解析模型输出（容忍"GENERIC."之类的尾缀），解析失败返回UNKNOWN
func ParseIntent(response string) Intent {
	label := strings.ToUpper(strings.TrimSpace(response))
	for _, valid := range validIntents {
		if strings.HasPrefix(label, string(valid)) {
			return valid
		}
	}
	logger.Warn("intent classifier returned unexpected label, defaulting to UNKNOWN",
		zap.String("label", label))
	return IntentUnknown
}
