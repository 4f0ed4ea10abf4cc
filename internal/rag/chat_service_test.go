package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/knowledge"
)

// routedLLM 按system prompt区分管道各阶段的补全调用
type routedLLM struct {
	intentResp  string
	genericResp string
	answerResp  string
	scoreResp   string

	intentErr error
	answerErr error

	intentCalls  int
	genericCalls int
	answerCalls  int
	scoreCalls   int
}

func (r *routedLLM) Complete(_ context.Context, system string, _ []ChatMessage, _ float32, _ int) (string, error) {
	switch system {
	case intentSystemPrompt:
		r.intentCalls++
		return r.intentResp, r.intentErr
	case genericSystemPrompt:
		r.genericCalls++
		return r.genericResp, nil
	case ragSystemPrompt:
		r.answerCalls++
		return r.answerResp, r.answerErr
	case confidenceSystemPrompt:
		r.scoreCalls++
		return r.scoreResp, nil
	}
	return "", fmt.Errorf("unexpected system prompt")
}

type fakeQueryEmbedder struct{}

func (fakeQueryEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}
func (fakeQueryEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (fakeQueryEmbedder) Dimensions() int { return 2 }

// fakeSearchIndex 返回预置命中的索引
type fakeSearchIndex struct {
	hits        []knowledge.ScoredDocument
	searchErr   error
	searchCalls int
	lastReq     knowledge.SearchRequest
}

func (f *fakeSearchIndex) EnsureSchema(_ context.Context, _ int) error { return nil }
func (f *fakeSearchIndex) Upsert(_ context.Context, _ []knowledge.Document) error {
	return nil
}
func (f *fakeSearchIndex) Search(_ context.Context, req knowledge.SearchRequest) ([]knowledge.ScoredDocument, error) {
	f.searchCalls++
	f.lastReq = req
	return f.hits, f.searchErr
}
func (f *fakeSearchIndex) DeleteByFilter(_ context.Context, _ knowledge.Filter) error { return nil }
func (f *fakeSearchIndex) Ready() bool                                                { return true }

func testRAGConfig() *config.RAGConfig {
	return &config.RAGConfig{
		TopK:                3,
		ConfidenceThreshold: 0.65,
		SourceType:          "confluence",
		EscalationMessage:   "I couldn't find a reliable answer. Please create a support ticket.",
		OffTopicMessage:     "I can only help with IT questions.",
		NotFoundMessage:     "I couldn't find relevant information in the knowledge base.",
		MaxContextChars:     8000,
		Scorer:              "llm",
	}
}

func vpnHits() []knowledge.ScoredDocument {
	docs := make([]knowledge.ScoredDocument, 3)
	for i := range docs {
		docs[i] = knowledge.ScoredDocument{
			Document: knowledge.Document{
				ID:        fmt.Sprintf("100_abc_%d", i),
				Content:   fmt.Sprintf("VPN step %d", i+1),
				PageID:    "100",
				PageTitle: "VPN Guide",
			},
			Score: 1.0 - float64(i)*0.1,
		}
	}
	return docs
}

func newTestService(t *testing.T, llm *routedLLM, index *fakeSearchIndex, cfg *config.RAGConfig) *ChatService {
	t.Helper()
	retriever, err := NewRetriever(fakeQueryEmbedder{}, index, cfg.SourceType)
	require.NoError(t, err)
	generator := NewAnswerGenerator(llm, cfg.NotFoundMessage, cfg.MaxContextChars, 500)
	return NewChatService(NewIntentClassifier(llm), retriever, generator, NewLLMScorer(llm), llm, cfg)
}

// TestHandleGenericSkipsRetrieval 测试通用问题直接回答，不触发检索
func TestHandleGenericSkipsRetrieval(t *testing.T) {
	llm := &routedLLM{intentResp: "GENERIC", genericResp: "Restart your router."}
	index := &fakeSearchIndex{}
	service := newTestService(t, llm, index, testRAGConfig())

	decision := service.Handle(context.Background(), "c1", "How do I restart a router?", nil)

	assert.Equal(t, IntentGeneric, decision.Intent)
	assert.Equal(t, AnswerGeneric, decision.AnswerType)
	assert.Equal(t, "Restart your router.", decision.AnswerText)
	assert.InDelta(t, 0.9, decision.Confidence, 1e-9)
	assert.Zero(t, index.searchCalls)
	assert.Empty(t, decision.RetrievedChunks)
}

// TestHandleRAGHighConfidence 测试领域问题走检索且高置信时返回生成回答
func TestHandleRAGHighConfidence(t *testing.T) {
	llm := &routedLLM{
		intentResp: "DOMAIN_SPECIFIC",
		answerResp: "1. Open the VPN client.\n2. Click connect.",
		scoreResp:  "0.8",
	}
	index := &fakeSearchIndex{hits: vpnHits()}
	service := newTestService(t, llm, index, testRAGConfig())

	decision := service.Handle(context.Background(), "c1", "How do I set up Cavco VPN?", nil)

	assert.Equal(t, IntentDomainSpecific, decision.Intent)
	assert.Equal(t, AnswerRAG, decision.AnswerType)
	assert.Equal(t, "1. Open the VPN client.\n2. Click connect.", decision.AnswerText)
	assert.InDelta(t, 0.8, decision.Confidence, 1e-9)
	require.Len(t, decision.RetrievedChunks, 3)
	assert.Equal(t, "VPN Guide", decision.RetrievedChunks[0].PageTitle)

	// 检索请求带来源类型过滤和topK
	assert.Equal(t, 3, index.lastReq.TopK)
	require.NotNil(t, index.lastReq.Filter)
	assert.Equal(t, "confluence", index.lastReq.Filter.SourceType)
}

// TestHandleLowConfidenceEscalates 测试低置信时丢弃生成文本，返回固定升级文案
func TestHandleLowConfidenceEscalates(t *testing.T) {
	cfg := testRAGConfig()
	llm := &routedLLM{
		intentResp: "DOMAIN_SPECIFIC",
		answerResp: "Maybe try turning it off and on again?",
		scoreResp:  "0.4",
	}
	index := &fakeSearchIndex{hits: vpnHits()}
	service := newTestService(t, llm, index, cfg)

	decision := service.Handle(context.Background(), "c1", "How do I fix the badge printer?", nil)

	assert.Equal(t, AnswerEscalation, decision.AnswerType)
	assert.Equal(t, cfg.EscalationMessage, decision.AnswerText)
	assert.NotContains(t, decision.AnswerText, "turning it off")
	assert.InDelta(t, 0.4, decision.Confidence, 1e-9)
	// 检索结果仍随决策返回，供上层记录
	assert.Len(t, decision.RetrievedChunks, 3)
}

// TestHandleEmptyRetrievalEscalates 测试零命中时不调用生成，直接找不到+升级
func TestHandleEmptyRetrievalEscalates(t *testing.T) {
	cfg := testRAGConfig()
	llm := &routedLLM{intentResp: "DOMAIN_SPECIFIC"}
	index := &fakeSearchIndex{}
	service := newTestService(t, llm, index, cfg)

	decision := service.Handle(context.Background(), "c1", "What is the Zorblatt procedure?", nil)

	assert.Equal(t, AnswerEscalation, decision.AnswerType)
	assert.Equal(t, cfg.NotFoundMessage, decision.AnswerText)
	assert.Zero(t, decision.Confidence)
	assert.Zero(t, llm.answerCalls, "no generation call on empty retrieval")
	assert.Zero(t, llm.scoreCalls)
}

// TestHandleOffTopic 测试跑题问题直接拒答，不检索不生成
func TestHandleOffTopic(t *testing.T) {
	cfg := testRAGConfig()
	llm := &routedLLM{intentResp: "OFF_TOPIC"}
	index := &fakeSearchIndex{}
	service := newTestService(t, llm, index, cfg)

	decision := service.Handle(context.Background(), "c1", "Who won the game last night?", nil)

	assert.Equal(t, AnswerOffTopic, decision.AnswerType)
	assert.Equal(t, cfg.OffTopicMessage, decision.AnswerText)
	assert.Zero(t, index.searchCalls)
	assert.Zero(t, llm.genericCalls)
	assert.Zero(t, llm.answerCalls)
}

// TestHandleUnknownIntentRetrieves 测试UNKNOWN意图走检索路径兜底
func TestHandleUnknownIntentRetrieves(t *testing.T) {
	llm := &routedLLM{
		intentResp: "UNKNOWN",
		answerResp: "Use the guest network.",
		scoreResp:  "0.9",
	}
	index := &fakeSearchIndex{hits: vpnHits()}
	service := newTestService(t, llm, index, testRAGConfig())

	decision := service.Handle(context.Background(), "c1", "wifi?", nil)

	assert.Equal(t, IntentUnknown, decision.Intent)
	assert.Equal(t, AnswerRAG, decision.AnswerType)
	assert.Equal(t, 1, index.searchCalls)
}

// TestHandleRetrievalFailureEscalates 测试检索失败被吸收为升级决策
func TestHandleRetrievalFailureEscalates(t *testing.T) {
	cfg := testRAGConfig()
	llm := &routedLLM{intentResp: "DOMAIN_SPECIFIC"}
	index := &fakeSearchIndex{searchErr: errors.New("index unavailable")}
	service := newTestService(t, llm, index, cfg)

	decision := service.Handle(context.Background(), "c1", "How do I map a network drive?", nil)

	assert.Equal(t, AnswerEscalation, decision.AnswerType)
	assert.Equal(t, cfg.EscalationMessage, decision.AnswerText)
	assert.Zero(t, decision.Confidence)
	// 失败重试一次后放弃
	assert.Equal(t, 2, index.searchCalls)
}

// flakyScorer 首次打分失败，第二次成功
type flakyScorer struct {
	calls int
	score float64
}

func (f *flakyScorer) Score(_ context.Context, _, _ string) (float64, error) {
	f.calls++
	if f.calls == 1 {
		return 0, errors.New("transient scoring failure")
	}
	return f.score, nil
}

// TestHandleScoringRetriesOnce 测试打分失败和其他外部调用一样重试一次
func TestHandleScoringRetriesOnce(t *testing.T) {
	cfg := testRAGConfig()
	llm := &routedLLM{
		intentResp: "DOMAIN_SPECIFIC",
		answerResp: "1. Open the VPN client.\n2. Click connect.",
	}
	index := &fakeSearchIndex{hits: vpnHits()}
	retriever, err := NewRetriever(fakeQueryEmbedder{}, index, cfg.SourceType)
	require.NoError(t, err)
	generator := NewAnswerGenerator(llm, cfg.NotFoundMessage, cfg.MaxContextChars, 500)
	scorer := &flakyScorer{score: 0.9}
	service := NewChatService(NewIntentClassifier(llm), retriever, generator, scorer, llm, cfg)

	decision := service.Handle(context.Background(), "c1", "How do I set up Cavco VPN?", nil)

	assert.Equal(t, 2, scorer.calls)
	assert.Equal(t, AnswerRAG, decision.AnswerType)
	assert.InDelta(t, 0.9, decision.Confidence, 1e-9)
}

// TestHandleGeneratesConversationID 测试空会话id时自动生成
func TestHandleGeneratesConversationID(t *testing.T) {
	llm := &routedLLM{intentResp: "OFF_TOPIC"}
	service := newTestService(t, llm, &fakeSearchIndex{}, testRAGConfig())

	decision := service.Handle(context.Background(), "", "tell me a joke", nil)
	assert.NotEmpty(t, decision.ConversationID)

	kept := service.Handle(context.Background(), "conv-7", "tell me a joke", nil)
	assert.Equal(t, "conv-7", kept.ConversationID)
}
