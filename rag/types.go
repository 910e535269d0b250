package rag

import (
	"github.com/BaSui01/knowledgeflow/store"
)

// Role 会话角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 一轮会话消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AgentConfig 可选的人设/角色配置，拼入生成阶段的 system prompt。
type AgentConfig struct {
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Persona string `json:"persona,omitempty"`
}

// ScoredChunk 单次检索中携带融合分数与来源策略的块。
type ScoredChunk struct {
	Chunk      store.Chunk `json:"chunk"`
	Score      float64     `json:"score"`
	Strategies []string    `json:"strategies"`
}

// ChunkRef 对外返回的检索引用。
type ChunkRef struct {
	ChunkID        string  `json:"chunk_id"`
	RelevanceScore float64 `json:"relevance_score"`
	Strategy       string  `json:"provenance_strategy"`
}

// CitationRef 回答中实际引用的块。
type CitationRef struct {
	ChunkID         string  `json:"chunk_id"`
	SourceFile      string  `json:"source_file"`
	CitationText    string  `json:"citation_text"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// 检索策略名。
const (
	StrategyKeyword = "keyword"
	StrategyTag     = "tag"
	StrategyGraph   = "graph"
)

// lastTurns 截取会话历史的最后 n 轮。
func lastTurns(messages []Message, n int) []Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// truncate 按字节截断文本并追加省略号。
func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
