package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/logger"
)

// ConfidenceScorer 给(问题, 回答)对打0~1的置信分，供升级门槛判断
type ConfidenceScorer interface {
	Score(ctx context.Context, question, answer string) (float64, error)
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// LLMScorer 让模型对自己的回答自评。输出解析失败不报错，
// 回退到启发式打分，评分链路任何一环断了都不该阻塞回答。
type LLMScorer struct {
	llm      CompletionClient
	fallback *HeuristicScorer
}

// NewLLMScorer 创建LLM置信度评估器
func NewLLMScorer(llm CompletionClient) *LLMScorer {
	return &LLMScorer{llm: llm, fallback: NewHeuristicScorer()}
}

// Score 评估回答置信度
func (s *LLMScorer) Score(ctx context.Context, question, answer string) (float64, error) {
	messages := []ChatMessage{
		{Role: "user", Content: fmt.Sprintf(confidenceUserTemplate, question, answer)},
	}
	response, err := s.llm.Complete(ctx, confidenceSystemPrompt, messages, 0, 10)
	if err != nil {
		logger.Warn("confidence call failed, falling back to heuristic scoring", zap.Error(err))
		return s.fallback.Score(ctx, question, answer)
	}

	score, ok := parseScore(response)
	if !ok {
		logger.Warn("confidence response not numeric, falling back to heuristic scoring",
			zap.String("response", response))
		return s.fallback.Score(ctx, question, answer)
	}
	return score, nil
}

// parseScore 从模型输出中抽取数值并夹到[0,1]
func parseScore(response string) (float64, bool) {
	match := numberPattern.FindString(response)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	if value > 1 {
		// 容忍"85"这种百分制输出
		if value <= 100 {
			value = value / 100
		} else {
			value = 1
		}
	}
	if value < 0 {
		value = 0
	}
	return value, true
}

// 回答里出现这些短语说明模型自己也没把握
var lowConfidencePhrases = []string{
	"i couldn't find",
	"i could not find",
	"not in the knowledge base",
	"i don't know",
	"i do not know",
	"not enough information",
	"i'm not sure",
	"i am not sure",
	"may require creating a support ticket",
}

// HeuristicScorer 不依赖外部调用的词汇重合度打分，作为LLM评分的兜底。
// 粗糙但确定性强：问题词在回答里的覆盖率加上基础分，再按不确定措辞打折。
type HeuristicScorer struct{}

// NewHeuristicScorer 创建启发式评估器
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score 评估回答置信度
func (s *HeuristicScorer) Score(_ context.Context, question, answer string) (float64, error) {
	answerLower := strings.ToLower(answer)
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}
	for _, phrase := range lowConfidencePhrases {
		if strings.Contains(answerLower, phrase) {
			return 0.2, nil
		}
	}

	questionWords := significantWords(question)
	if len(questionWords) == 0 {
		return 0.5, nil
	}
	covered := 0
	for _, word := range questionWords {
		if strings.Contains(answerLower, word) {
			covered++
		}
	}
	overlap := float64(covered) / float64(len(questionWords))

	score := 0.4 + 0.5*overlap
	if score > 1 {
		score = 1
	}
	return score, nil
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "how": true, "what": true,
	"where": true, "when": true, "can": true, "you": true, "are": true,
	"with": true, "this": true, "that": true, "from": true, "does": true,
	"have": true, "about": true, "into": true, "please": true,
}

func significantWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	var words []string
	for _, field := range fields {
		word := strings.Trim(field, ".,!?;:'\"()")
		if len(word) < 3 || stopWords[word] {
			continue
		}
		words = append(words, word)
	}
	return words
}
