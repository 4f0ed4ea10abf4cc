package rag

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/logger"
	"github.com/cavco/helpdesk-go/internal/metrics"
)

// ChatService 在线决策管道：意图分类 -> 条件检索 -> 受限生成 -> 置信门槛。
// 任何一步的失败都被吸收成升级决策返回给调用方，管道本身不向上抛错，
// 用户永远能拿到一个可展示的回答。
type ChatService struct {
	classifier *IntentClassifier
	retriever  *Retriever
	generator  *AnswerGenerator
	scorer     ConfidenceScorer
	llm        CompletionClient
	cfg        *config.RAGConfig
}

// NewChatService 创建会话决策服务
func NewChatService(
	classifier *IntentClassifier,
	retriever *Retriever,
	generator *AnswerGenerator,
	scorer ConfidenceScorer,
	llm CompletionClient,
	cfg *config.RAGConfig,
) *ChatService {
	return &ChatService{
		classifier: classifier,
		retriever:  retriever,
		generator:  generator,
		scorer:     scorer,
		llm:        llm,
		cfg:        cfg,
	}
}

// Handle 处理一条用户消息并返回完整决策。conversationID为空时生成新会话
func (s *ChatService) Handle(ctx context.Context, conversationID, query string, history []ChatMessage) QueryDecision {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	start := time.Now()

	decision := s.decide(ctx, conversationID, query, history)

	metrics.Decisions.WithLabelValues(string(decision.AnswerType)).Inc()
	logger.Info("chat decision",
		zap.String("conversation_id", decision.ConversationID),
		zap.String("intent", string(decision.Intent)),
		zap.String("answer_type", string(decision.AnswerType)),
		zap.Float64("confidence", decision.Confidence),
		zap.Int("retrieved_chunks", len(decision.RetrievedChunks)),
		zap.Duration("elapsed", time.Since(start)))
	return decision
}

func (s *ChatService) decide(ctx context.Context, conversationID, query string, history []ChatMessage) QueryDecision {
	decision := QueryDecision{ConversationID: conversationID}

	intent, err := s.classify(ctx, query)
	if err != nil {
		// 分类失败按UNKNOWN处理，走检索路径兜底
		logger.Warn("intent classification failed, treating as UNKNOWN",
			zap.String("conversation_id", conversationID), zap.Error(err))
		intent = IntentUnknown
	}
	decision.Intent = intent

	switch intent {
	case IntentOffTopic:
		decision.AnswerText = s.cfg.OffTopicMessage
		decision.AnswerType = AnswerOffTopic
		decision.Confidence = 1.0
		return decision

	case IntentGeneric:
		return s.answerGeneric(ctx, decision, query, history)

	default:
		// DOMAIN_SPECIFIC和UNKNOWN都走检索：拿不准的查询宁可查一次知识库
		return s.answerWithRetrieval(ctx, decision, query)
	}
}

// answerGeneric 通用IT问题直接回答，带会话历史，不走知识库
func (s *ChatService) answerGeneric(ctx context.Context, decision QueryDecision, query string, history []ChatMessage) QueryDecision {
	messages := append(append([]ChatMessage{}, history...), ChatMessage{Role: "user", Content: query})

	var answer string
	err := s.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		answer, callErr = s.llm.Complete(callCtx, genericSystemPrompt, messages, 0.7, 500)
		return callErr
	})
	if err != nil {
		return s.escalate(decision, fmt.Errorf("generic answer failed: %w", err))
	}

	decision.AnswerText = answer
	decision.AnswerType = AnswerGeneric
	decision.Confidence = 0.9
	return decision
}

// answerWithRetrieval 检索->生成->打分->门槛判断
func (s *ChatService) answerWithRetrieval(ctx context.Context, decision QueryDecision, query string) QueryDecision {
	var chunks []RetrievedChunk
	err := s.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		chunks, callErr = s.retriever.Retrieve(callCtx, query, s.cfg.TopK)
		return callErr
	})
	if err != nil {
		return s.escalate(decision, fmt.Errorf("retrieval failed: %w", err))
	}
	decision.RetrievedChunks = chunks

	if len(chunks) == 0 {
		// 知识库没有命中：明说找不到并升级，绝不让模型凭空作答
		decision.AnswerText = s.cfg.NotFoundMessage
		decision.AnswerType = AnswerEscalation
		decision.Confidence = 0
		return decision
	}

	var answer string
	err = s.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		answer, callErr = s.generator.Generate(callCtx, query, chunks)
		return callErr
	})
	if err != nil {
		return s.escalate(decision, fmt.Errorf("answer generation failed: %w", err))
	}

	var score float64
	scoreErr := s.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		score, callErr = s.scorer.Score(callCtx, query, answer)
		return callErr
	})
	if scoreErr != nil {
		logger.Warn("confidence scoring failed, treating as zero confidence",
			zap.String("conversation_id", decision.ConversationID), zap.Error(scoreErr))
		score = 0
	}
	decision.Confidence = score
	metrics.ConfidenceScores.Observe(score)

	if score < s.cfg.ConfidenceThreshold {
		// 低置信回答整体丢弃，只返回固定升级文案
		decision.AnswerText = s.cfg.EscalationMessage
		decision.AnswerType = AnswerEscalation
		return decision
	}

	decision.AnswerText = answer
	decision.AnswerType = AnswerRAG
	return decision
}

func (s *ChatService) classify(ctx context.Context, query string) (Intent, error) {
	var intent Intent
	err := s.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		intent, callErr = s.classifier.Classify(callCtx, query)
		return callErr
	})
	return intent, err
}

// escalate 把失败吸收成升级决策并记录原因
func (s *ChatService) escalate(decision QueryDecision, cause error) QueryDecision {
	logger.Error("chat pipeline failure, escalating",
		zap.String("conversation_id", decision.ConversationID), zap.Error(cause))
	decision.AnswerText = s.cfg.EscalationMessage
	decision.AnswerType = AnswerEscalation
	decision.Confidence = 0
	return decision
}

// withRetry 给外部调用套上单次超时，失败重试一次后放弃
func (s *ChatService) withRetry(ctx context.Context, call func(context.Context) error) error {
	return retry.Do(
		func() error {
			return s.withTimeout(ctx, call)
		},
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// withTimeout 每次外部调用独立限时，互不挤占
func (s *ChatService) withTimeout(ctx context.Context, call func(context.Context) error) error {
	if s.cfg.CallTimeout <= 0 {
		return call(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return call(callCtx)
}
