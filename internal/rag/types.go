package rag

// Intent 查询意图
type Intent string

const (
	IntentGeneric        Intent = "GENERIC"
	IntentDomainSpecific Intent = "DOMAIN_SPECIFIC"
	IntentOffTopic       Intent = "OFF_TOPIC"
	IntentUnknown        Intent = "UNKNOWN"
)

// AnswerType 最终回答类型
type AnswerType string

const (
	AnswerGeneric    AnswerType = "GENERIC"
	AnswerRAG        AnswerType = "RAG"
	AnswerOffTopic   AnswerType = "OFF_TOPIC"
	AnswerEscalation AnswerType = "ESCALATION_REQUIRED"
)

// ChatMessage 会话历史中的一条消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetrievedChunk 命中的知识库片段（回答的来源引用）
type RetrievedChunk struct {
	ID           string  `json:"id"`
	PageID       string  `json:"page_id"`
	PageTitle    string  `json:"page_title"`
	SectionTitle string  `json:"section_title,omitempty"`
	URL          string  `json:"url,omitempty"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}

// QueryDecision 一次决策的完整产物。每次请求独立构造，核心自身不持久化。
type QueryDecision struct {
	ConversationID  string           `json:"conversation_id"`
	Intent          Intent           `json:"intent"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks,omitempty"`
	AnswerText      string           `json:"answer_text"`
	Confidence      float64          `json:"confidence"`
	AnswerType      AnswerType       `json:"answer_type"`
}
