package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseIntent 测试标签解析的宽容度
func TestParseIntent(t *testing.T) {
	cases := []struct {
		in   string
		want Intent
	}{
		{"GENERIC", IntentGeneric},
		{"generic", IntentGeneric},
		{" DOMAIN_SPECIFIC. ", IntentDomainSpecific},
		{"OFF_TOPIC", IntentOffTopic},
		{"UNKNOWN", IntentUnknown},
		{"GENERIC_QUESTION", IntentGeneric},
		{"maybe domain specific?", IntentUnknown},
		{"", IntentUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseIntent(c.in), "input %q", c.in)
	}
}

// TestClassifyEmptyQuery 测试空查询不发起调用直接UNKNOWN
func TestClassifyEmptyQuery(t *testing.T) {
	llm := &scriptedLLM{response: "GENERIC"}
	c := NewIntentClassifier(llm)

	intent, err := c.Classify(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, intent)
	assert.Zero(t, llm.calls)
}

// TestClassify 测试正常分类
func TestClassify(t *testing.T) {
	llm := &scriptedLLM{response: "DOMAIN_SPECIFIC"}
	c := NewIntentClassifier(llm)

	intent, err := c.Classify(context.Background(), "How do I reset Cavco VPN?")
	require.NoError(t, err)
	assert.Equal(t, IntentDomainSpecific, intent)
	assert.Equal(t, 1, llm.calls)
}

// TestClassifyCallFailure 测试调用失败返回UNKNOWN和错误
func TestClassifyCallFailure(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("rate limited")}
	c := NewIntentClassifier(llm)

	intent, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, IntentUnknown, intent)
}
