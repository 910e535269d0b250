package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

// HopStopReason 多跳循环的枚举退出条件。
type HopStopReason string

const (
	StopMaxDepth      HopStopReason = "max_depth_reached"
	StopModelDeclined HopStopReason = "model_declined"
	StopNoNewEvidence HopStopReason = "no_new_evidence"
)

// hopTopK 补充检索每跳的固定 top_k。
const hopTopK = 3

// HopResult 一次多跳补充检索的产出。
type HopResult struct {
	Added      []ScoredChunk `json:"added"`
	Hops       int           `json:"hops"`
	StopReason HopStopReason `json:"stop_reason"`
}

// MultiHop 迭代询问模型是否还需要证据，需要则用其给出的跟进查询
// 再次调用混合检索，按块 ID 去重并入。停止条件是显式枚举的，
// 不藏在模型调用点里。
type MultiHop struct {
	client    llm.Client
	retriever *HybridRetriever
	logger    *zap.Logger
}

// NewMultiHop 创建多跳控制器。
func NewMultiHop(client llm.Client, retriever *HybridRetriever, logger *zap.Logger) *MultiHop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiHop{
		client:    client,
		retriever: retriever,
		logger:    logger.With(zap.String("component", "multi_hop")),
	}
}

type hopDecision struct {
	NeedMore        bool     `json:"need_more"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// Expand 以 initial 为既有证据起点，至多迭代 maxDepth 跳。
// 每跳新增块作为下一跳的上下文；一跳零新增立即终止。
func (m *MultiHop) Expand(ctx context.Context, query string, initial []ScoredChunk, folderIDs []string, maxDepth int) HopResult {
	if maxDepth <= 0 {
		maxDepth = 2
	}

	seen := make(map[string]bool, len(initial))
	for _, c := range initial {
		seen[c.Chunk.ID] = true
	}

	result := HopResult{StopReason: StopMaxDepth}
	contextChunks := initial

	for hop := 0; hop < maxDepth; hop++ {
		decision, ok := m.askForFollowUps(ctx, query, contextChunks)
		if !ok || !decision.NeedMore || len(decision.FollowUpQueries) == 0 {
			result.StopReason = StopModelDeclined
			break
		}

		var added []ScoredChunk
		for _, followUp := range decision.FollowUpQueries {
			followUp = strings.TrimSpace(followUp)
			if followUp == "" {
				continue
			}
			hits, err := m.retriever.Retrieve(ctx, []string{followUp}, nil, RetrieveOptions{
				TopK:      hopTopK,
				FolderIDs: folderIDs,
			})
			if err != nil {
				m.logger.Warn("follow-up retrieval failed",
					zap.String("query", followUp),
					zap.Error(err))
				continue
			}
			for _, hit := range hits {
				if seen[hit.Chunk.ID] {
					continue
				}
				seen[hit.Chunk.ID] = true
				added = append(added, hit)
			}
		}

		result.Hops = hop + 1
		if len(added) == 0 {
			result.StopReason = StopNoNewEvidence
			break
		}

		result.Added = append(result.Added, added...)
		contextChunks = added
	}

	m.logger.Debug("multi-hop complete",
		zap.Int("hops", result.Hops),
		zap.Int("added", len(result.Added)),
		zap.String("stop_reason", string(result.StopReason)))

	return result
}

// askForFollowUps 询问模型是否需要更多信息。失败视为 declined。
func (m *MultiHop) askForFollowUps(ctx context.Context, query string, evidence []ScoredChunk) (hopDecision, bool) {
	if m.client == nil {
		return hopDecision{}, false
	}

	var preview strings.Builder
	for i, c := range evidence {
		fmt.Fprintf(&preview, "[%d] %s\n", i+1, truncate(strings.ReplaceAll(c.Chunk.Content, "\n", " "), 300))
		if i == 4 {
			break
		}
	}
	if preview.Len() == 0 {
		preview.WriteString("(no evidence gathered yet)\n")
	}

	prompt := fmt.Sprintf(`Given a question and the evidence gathered so far, decide whether more retrieval is needed. Respond with only a JSON object:
{"need_more": true|false, "follow_up_queries": ["focused follow-up query", ...]}

If the evidence already covers the question, answer {"need_more": false, "follow_up_queries": []}.

Question: %s

Evidence so far:
%s`, query, preview.String())

	raw, err := m.client.Complete(ctx, prompt)
	if err != nil {
		m.logger.Warn("hop decision failed", zap.Error(err))
		return hopDecision{}, false
	}

	var decision hopDecision
	if !llm.ExtractJSON(raw, &decision) {
		m.logger.Warn("hop decision unparseable")
		return hopDecision{}, false
	}
	return decision, true
}
