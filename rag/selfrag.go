package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

// RetrievalDecision Self-RAG 的二元决策。
type RetrievalDecision string

const (
	DecisionRetrieve   RetrievalDecision = "retrieve"
	DecisionNoRetrieve RetrievalDecision = "no_retrieve"
)

// selfRAGHistoryTurns 决策时回看的会话轮数。
const selfRAGHistoryTurns = 4

// SelfRAG 在任何检索发生前判断检索是否必要。获取或解析决策失败
// 一律 fail open 到 retrieve：宁可多做工作，不要无依据作答。
type SelfRAG struct {
	client llm.Client
	logger *zap.Logger
}

// NewSelfRAG 创建检索决策器。
func NewSelfRAG(client llm.Client, logger *zap.Logger) *SelfRAG {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelfRAG{
		client: client,
		logger: logger.With(zap.String("component", "self_rag")),
	}
}

// Decide 对当前查询（带最近会话历史）给出 retrieve / no_retrieve。
func (s *SelfRAG) Decide(ctx context.Context, query string, history []Message) RetrievalDecision {
	if s.client == nil {
		return DecisionRetrieve
	}

	var convo strings.Builder
	for _, msg := range lastTurns(history, selfRAGHistoryTurns) {
		fmt.Fprintf(&convo, "%s: %s\n", msg.Role, truncate(msg.Content, 300))
	}
	if convo.Len() == 0 {
		convo.WriteString("(no prior conversation)\n")
	}

	prompt := fmt.Sprintf(`Decide whether answering the user's message requires retrieving documents from the knowledge base, or can be answered from general knowledge and the conversation alone. Respond with only a JSON object:
{"decision": "retrieve"} or {"decision": "no_retrieve"}

Recent conversation:
%s
User message: %s`, convo.String(), query)

	raw, err := s.client.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("retrieval decision failed, defaulting to retrieve", zap.Error(err))
		return DecisionRetrieve
	}

	var payload struct {
		Decision string `json:"decision"`
	}
	if !llm.ExtractJSON(raw, &payload) {
		s.logger.Warn("retrieval decision unparseable, defaulting to retrieve")
		return DecisionRetrieve
	}

	if strings.EqualFold(strings.TrimSpace(payload.Decision), string(DecisionNoRetrieve)) {
		return DecisionNoRetrieve
	}
	return DecisionRetrieve
}

// ===========================================================================
// Corrective-RAG：检索后证据过滤
// ===========================================================================

// correctiveMinConfidence 低于该置信度的证据被剔除。
const correctiveMinConfidence = 0.4

// correctiveFloor 过滤后保底保留的块数（输入足够多时）。
const correctiveFloor = 2

// CorrectiveResult 证据过滤结果。
type CorrectiveResult struct {
	Kept           []ScoredChunk `json:"kept"`
	Removed        int           `json:"removed"`
	OverallQuality string        `json:"overall_quality"`
	Applied        bool          `json:"applied"` // 模型评估是否生效
}

// Corrective 逐块评估检索证据的相关性与置信度，剔除弱证据。
// 刻意的 never-discard-all 策略：过滤绝不把证据清空。
type Corrective struct {
	client llm.Client
	logger *zap.Logger
}

// NewCorrective 创建证据过滤器。
func NewCorrective(client llm.Client, logger *zap.Logger) *Corrective {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corrective{
		client: client,
		logger: logger.With(zap.String("component", "corrective_rag")),
	}
}

type chunkEvaluation struct {
	Index      int      `json:"index"`
	Relevant   *bool    `json:"relevant"`
	Confidence *float64 `json:"confidence"`
}

type correctivePayload struct {
	Evaluations    []chunkEvaluation `json:"evaluations"`
	OverallQuality string            `json:"overall_quality"`
}

// Filter 过滤证据。模型失败时原样放行；过滤后不足 correctiveFloor
// 时按原序回补到保底数量。
func (c *Corrective) Filter(ctx context.Context, query string, chunks []ScoredChunk) CorrectiveResult {
	passthrough := CorrectiveResult{Kept: chunks}
	if len(chunks) == 0 || c.client == nil {
		return passthrough
	}

	var digest strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&digest, "[%d] %s\n", i, truncate(strings.ReplaceAll(chunk.Chunk.Content, "\n", " "), 300))
	}

	prompt := fmt.Sprintf(`Judge each retrieved passage's relevance to the query. Respond with only a JSON object:
{"evaluations": [{"index": 0, "relevant": true|false, "confidence": 0.0-1.0}, ...], "overall_quality": "good|mixed|poor"}

Query: %s

Passages:
%s`, query, digest.String())

	raw, err := c.client.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("corrective evaluation failed, passing evidence through", zap.Error(err))
		return passthrough
	}

	var payload correctivePayload
	if !llm.ExtractJSON(raw, &payload) {
		c.logger.Warn("corrective evaluation unparseable, passing evidence through")
		return passthrough
	}

	evaluations := make(map[int]chunkEvaluation, len(payload.Evaluations))
	for _, ev := range payload.Evaluations {
		evaluations[ev.Index] = ev
	}

	var kept []ScoredChunk
	for i, chunk := range chunks {
		ev, ok := evaluations[i]
		if !ok {
			// 模型没评到的块不剔除
			kept = append(kept, chunk)
			continue
		}
		// 显式 relevant=false 才算否决
		if ev.Relevant != nil && !*ev.Relevant {
			continue
		}
		confidence := 0.5
		if ev.Confidence != nil {
			confidence = *ev.Confidence
		}
		if confidence < correctiveMinConfidence {
			continue
		}
		kept = append(kept, chunk)
	}

	// 保底：给了 ≥2 块就绝不返回少于 2 块
	floor := correctiveFloor
	if len(chunks) < floor {
		floor = len(chunks)
	}
	if len(kept) < floor {
		keptIDs := make(map[string]bool, len(kept))
		for _, k := range kept {
			keptIDs[k.Chunk.ID] = true
		}
		for _, chunk := range chunks {
			if len(kept) >= floor {
				break
			}
			if !keptIDs[chunk.Chunk.ID] {
				kept = append(kept, chunk)
			}
		}
	}

	return CorrectiveResult{
		Kept:           kept,
		Removed:        len(chunks) - len(kept),
		OverallQuality: payload.OverallQuality,
		Applied:        true,
	}
}
