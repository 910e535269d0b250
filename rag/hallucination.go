package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

// hallucinationEvidenceLimit 送检证据的截断上限（字符）。
const hallucinationEvidenceLimit = 6000

// HallucinationClaim 一条未被证据支撑的断言。
type HallucinationClaim struct {
	Claim string `json:"claim"`
	Issue string `json:"issue"`
}

// HallucinationReport 幻觉核查结果。纯建议性：只记录，不拦截回答。
type HallucinationReport struct {
	Detected bool                 `json:"detected"`
	Details  []HallucinationClaim `json:"details"`
}

// HallucinationChecker 比对生成回答与保留证据，标记无支撑断言。
type HallucinationChecker struct {
	client llm.Client
	logger *zap.Logger
}

// NewHallucinationChecker 创建幻觉核查器。
func NewHallucinationChecker(client llm.Client, logger *zap.Logger) *HallucinationChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HallucinationChecker{
		client: client,
		logger: logger.With(zap.String("component", "hallucination_checker")),
	}
}

// Check 核查回答。失败返回 {detected:false}：查不出不等于没有，
// 但这项检查绝不阻塞管道。
func (h *HallucinationChecker) Check(ctx context.Context, query, answer string, evidence []ScoredChunk) HallucinationReport {
	if h.client == nil || answer == "" || len(evidence) == 0 {
		return HallucinationReport{}
	}

	var corpus strings.Builder
	for _, chunk := range evidence {
		corpus.WriteString(chunk.Chunk.Content)
		corpus.WriteString("\n---\n")
	}

	prompt := fmt.Sprintf(`Compare the answer against the evidence. List any factual claims in the answer that the evidence does not support. Respond with only a JSON object:
{"detected": true|false, "details": [{"claim": "the unsupported claim", "issue": "why it is unsupported"}, ...]}

Question: %s

Evidence:
%s

Answer:
%s`, query, truncate(corpus.String(), hallucinationEvidenceLimit), answer)

	raw, err := h.client.Complete(ctx, prompt)
	if err != nil {
		h.logger.Warn("hallucination check failed", zap.Error(err))
		return HallucinationReport{}
	}

	var report HallucinationReport
	if !llm.ExtractJSON(raw, &report) {
		h.logger.Warn("hallucination check unparseable")
		return HallucinationReport{}
	}
	if len(report.Details) > 0 {
		report.Detected = true
	}
	return report
}
