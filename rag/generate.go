package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

const (
	// 生成时回看的会话轮数
	generateHistoryTurns = 6
	// 引用摘录上限（字符）
	citationExcerptLimit = 200
)

var sourceMarker = regexp.MustCompile(`\[Source (\d+)\]`)

// GenerateResult 生成阶段的产出。
type GenerateResult struct {
	Response   string        `json:"response"`
	Citations  []CitationRef `json:"citations"`
	Confidence float64       `json:"confidence"`
}

// Generator 由保留证据与人设配置构造 grounded prompt，调用模型生成
// 回答，并从生成文本中解析行内 [Source N] 引用标记。
type Generator struct {
	client llm.Client
	logger *zap.Logger
}

// NewGenerator 创建回答生成器。
func NewGenerator(client llm.Client, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client: client,
		logger: logger.With(zap.String("component", "generator")),
	}
}

// Generate 生成回答。evidence 可为空（从指令直接作答）；模型彻底
// 不可用时返回错误，由编排层降级为道歉文案。
func (g *Generator) Generate(ctx context.Context, messages []Message, evidence []ScoredChunk, agent *AgentConfig) (GenerateResult, error) {
	if g.client == nil {
		return GenerateResult{}, &llm.Error{Code: llm.ErrProviderUnavailable, Message: "no language model client configured"}
	}

	query := LastUserMessage(messages)
	prompt := g.buildPrompt(messages, evidence, agent, query)

	raw, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return GenerateResult{}, err
	}
	response := strings.TrimSpace(raw)

	citations := extractCitations(response, evidence)
	return GenerateResult{
		Response:   response,
		Citations:  citations,
		Confidence: responseConfidence(citations, evidence),
	}, nil
}

func (g *Generator) buildPrompt(messages []Message, evidence []ScoredChunk, agent *AgentConfig, query string) string {
	var b strings.Builder

	b.WriteString("You are a careful assistant answering from provided context.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- When context sources are provided, base your answer on them and cite each used source inline as [Source N].\n")
	b.WriteString("- Never fabricate facts that are not in the context or well-established knowledge.\n")
	b.WriteString("- If the context does not contain the answer, say so.\n")
	b.WriteString("- Be concise.\n")

	if agent != nil {
		if agent.Role != "" {
			fmt.Fprintf(&b, "\nRole: %s\n", agent.Role)
		}
		if agent.Persona != "" {
			fmt.Fprintf(&b, "Persona: %s\n", agent.Persona)
		}
	}

	if len(evidence) > 0 {
		b.WriteString("\nContext:\n")
		for i, chunk := range evidence {
			fmt.Fprintf(&b, "Source %d (%s):\n%s\n\n", i+1, chunk.Chunk.SourceFile, chunk.Chunk.Content)
		}
	}

	history := lastTurns(messages, generateHistoryTurns)
	if len(history) > 1 {
		b.WriteString("\nConversation:\n")
		for _, msg := range history[:len(history)-1] {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", query)
	return b.String()
}

// extractCitations 解析 [Source N] 标记，按各下标首次出现的顺序
// 映射回证据块，按块 ID 去重，摘录截断到 200 字符。
func extractCitations(response string, evidence []ScoredChunk) []CitationRef {
	matches := sourceMarker.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil
	}

	seenChunks := make(map[string]bool)
	var out []CitationRef
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(evidence) {
			continue
		}
		chunk := evidence[n-1].Chunk
		if seenChunks[chunk.ID] {
			continue
		}
		seenChunks[chunk.ID] = true
		out = append(out, CitationRef{
			ChunkID:         chunk.ID,
			SourceFile:      chunk.SourceFile,
			CitationText:    truncateExcerpt(chunk.Content, citationExcerptLimit),
			ConfidenceScore: evidence[n-1].Score,
		})
	}
	return out
}

// truncateExcerpt 硬截断，不加省略号：引用摘录的上限是契约值。
func truncateExcerpt(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

// responseConfidence 启发式置信度：无引用 0.4；有引用
// min(0.9, 0.5 + 0.1×引用数 + 0.2×首位证据块质量分)。
func responseConfidence(citations []CitationRef, evidence []ScoredChunk) float64 {
	if len(citations) == 0 {
		return 0.4
	}
	topQuality := 0.0
	if len(evidence) > 0 {
		topQuality = evidence[0].Chunk.QualityScore
	}
	confidence := 0.5 + 0.1*float64(len(citations)) + 0.2*topQuality
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}

// LastUserMessage 返回最近一条用户消息的内容。
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
