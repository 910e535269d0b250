package rag

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ChunkingConfig 分块配置。
type ChunkingConfig struct {
	// 目标块大小（字符）
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// 相邻块重叠（字符）
	Overlap int `yaml:"overlap" json:"overlap"`
	// 低于该长度的块被丢弃
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// DefaultChunkingConfig 返回默认分块配置。
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		Overlap:      200,
		MinChunkSize: 50,
	}
}

// TextChunk 分块结果。Index 在同一文档内从 0 连续编号。
type TextChunk struct {
	Content      string  `json:"content"`
	Index        int     `json:"index"`
	Total        int     `json:"total"`
	ChunkType    string  `json:"chunk_type"` // intro / content / conclusion
	QualityScore float64 `json:"quality_score"`
	TokenCount   int     `json:"token_count"`
}

// Chunker 把原始文本切成语义边界上带重叠的段。纯函数式：
// 无随机性、无外部调用，同样输入恒产出同样的块序列。
type Chunker struct {
	config ChunkingConfig
	logger *zap.Logger
}

// NewChunker 创建分块器。
func NewChunker(config ChunkingConfig, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.MinChunkSize <= 0 {
		config.MinChunkSize = 50
	}
	return &Chunker{
		config: config,
		logger: logger.With(zap.String("component", "chunker")),
	}
}

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceSplit  = regexp.MustCompile(`([.!?])\s+`)
	listMarker     = regexp.MustCompile(`(?m)^\s*[-*•]\s`)
	numberedItem   = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)
	digitPattern   = regexp.MustCompile(`\d`)
	referenceHint  = regexp.MustCompile(`@|https?://`)
)

// Split 切分文本。段落（空行边界）为基本单元；超长段落再按句子
// 边界细分。缓冲即将越过目标大小时封口当前块，并把上一块的尾部
// overlap 字符前缀到下一块。收尾丢弃过短的块。
func (c *Chunker) Split(text string) []TextChunk {
	units := c.splitUnits(text)

	// 先按目标大小聚合出不含重叠的块体
	var bodies []string
	var buf strings.Builder
	for _, unit := range units {
		if buf.Len() > 0 && buf.Len()+len(unit)+2 > c.config.ChunkSize {
			bodies = append(bodies, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(unit)
	}
	if buf.Len() > 0 {
		bodies = append(bodies, buf.String())
	}

	// 再做重叠前缀与过短过滤
	var contents []string
	for i, body := range bodies {
		content := body
		if i > 0 && c.config.Overlap > 0 {
			// 重叠按字符计数,避免在多字节序列中间切断
			prev := []rune(bodies[i-1])
			start := len(prev) - c.config.Overlap
			if start < 0 {
				start = 0
			}
			content = string(prev[start:]) + content
		}
		if len(strings.TrimSpace(content)) < c.config.MinChunkSize {
			continue
		}
		contents = append(contents, content)
	}

	chunks := make([]TextChunk, len(contents))
	for i, content := range contents {
		chunks[i] = TextChunk{
			Content:      content,
			Index:        i,
			Total:        len(contents),
			ChunkType:    classifyChunk(i, len(contents)),
			QualityScore: ScoreQuality(content),
			TokenCount:   EstimateTokens(content),
		}
	}

	c.logger.Debug("text split",
		zap.Int("units", len(units)),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// splitUnits 段落切分；超过目标大小的段落降级为句子单元。
func (c *Chunker) splitUnits(text string) []string {
	var units []string
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.config.ChunkSize {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			sent = strings.TrimSpace(sent)
			if sent != "" {
				units = append(units, sent)
			}
		}
	}
	return units
}

// splitSentences 在 .!? 后跟空白处断句，保留句尾标点。
func splitSentences(text string) []string {
	marked := sentenceSplit.ReplaceAllString(text, "$1\x00")
	return strings.Split(marked, "\x00")
}

func classifyChunk(index, total int) string {
	switch {
	case total == 1:
		return "content"
	case index == 0:
		return "intro"
	case index == total-1:
		return "conclusion"
	default:
		return "content"
	}
}

// ScoreQuality 对块内容打启发式质量分，取值 [0,1]。
// 同样内容恒得同样分数，这是下游融合权重的确定性前提。
func ScoreQuality(content string) float64 {
	if strings.TrimSpace(content) == "" {
		return 0
	}

	score := 0.5
	n := len(content)
	if n > 200 {
		score += 0.1
	}
	if n > 500 {
		score += 0.1
	}
	if strings.Contains(content, "\n") {
		score += 0.05
	}
	if listMarker.MatchString(content) {
		score += 0.05
	}
	if numberedItem.MatchString(content) {
		score += 0.05
	}
	if digitPattern.MatchString(content) {
		score += 0.05
	}
	if referenceHint.MatchString(content) {
		score += 0.05
	}
	if n < 100 {
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// EstimateTokens 以 ceil(字符数/4) 估算 token 数。这是下游预算检查
// 依赖的固定代理值，不是真实分词。
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}
