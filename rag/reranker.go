package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

// rerankConsidered 送入模型的候选上限。
const rerankConsidered = 10

// Reranker 让模型对候选列表给出显式名次，并施加名次加成。
// 纯精化步骤：模型失败时退回融合顺序截断，绝不成为必经门。
type Reranker struct {
	client llm.Client
	logger *zap.Logger
}

// NewReranker 创建重排器。
func NewReranker(client llm.Client, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		client: client,
		logger: logger.With(zap.String("component", "reranker")),
	}
}

// Rerank 重排候选。topN 默认 3。返回的布尔值表示模型重排是否生效。
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ScoredChunk, topN int) ([]ScoredChunk, bool) {
	if topN <= 0 {
		topN = 3
	}
	if len(candidates) == 0 {
		return candidates, false
	}

	considered := candidates
	if len(considered) > rerankConsidered {
		considered = considered[:rerankConsidered]
	}

	fallback := considered
	if len(fallback) > topN {
		fallback = fallback[:topN]
	}

	if r.client == nil {
		return fallback, false
	}

	var digest strings.Builder
	for i, cand := range considered {
		fmt.Fprintf(&digest, "[%d] %s\n", i, truncate(strings.ReplaceAll(cand.Chunk.Content, "\n", " "), 200))
	}

	prompt := fmt.Sprintf(`Rank the following passages by relevance to the query, most relevant first. Respond with only a JSON array of passage indices, at most %d entries, e.g. [2, 0, 1].

Query: %s

Passages:
%s`, topN, query, digest.String())

	raw, err := r.client.Complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("rerank failed, falling back to fused order", zap.Error(err))
		return fallback, false
	}

	var ranking []int
	if !llm.ExtractJSON(raw, &ranking) {
		r.logger.Warn("rerank output unparseable, falling back to fused order")
		return fallback, false
	}

	// 校验名次：越界与重复的下标直接丢弃
	seen := make(map[int]bool)
	valid := ranking[:0]
	for _, idx := range ranking {
		if idx < 0 || idx >= len(considered) || seen[idx] {
			continue
		}
		seen[idx] = true
		valid = append(valid, idx)
		if len(valid) == topN {
			break
		}
	}
	if len(valid) == 0 {
		return fallback, false
	}

	// 名次加成：第 pos 名加 0.1×(N-pos)
	out := make([]ScoredChunk, 0, len(valid))
	for pos, idx := range valid {
		cand := considered[idx]
		cand.Score += 0.1 * float64(len(valid)-pos)
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, true
}
