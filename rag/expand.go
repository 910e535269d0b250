package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

// Expansion 查询扩展结果。纯建议性：下游在退化结果上也必须正确工作。
type Expansion struct {
	Original     string   `json:"original"`
	Expanded     []string `json:"expanded"`
	Hypothetical string   `json:"hypothetical,omitempty"`
	SubQueries   []string `json:"sub_queries,omitempty"`
	Intent       string   `json:"intent"`
	Entities     []string `json:"entities,omitempty"`
	FromCache    bool     `json:"-"`
}

// DegradedExpansion 模型不可用时的保底扩展。
func DegradedExpansion(query string) Expansion {
	return Expansion{
		Original: query,
		Expanded: []string{query},
		Intent:   "informational",
	}
}

// ExpansionCache 扩展结果缓存（可选，nil 安全）。
type ExpansionCache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// ExpanderConfig 查询扩展配置。
type ExpanderConfig struct {
	// 最多生成的复述数
	MaxParaphrases int `yaml:"max_paraphrases" json:"max_paraphrases"`
	// 最多分解出的子查询数
	MaxSubQueries int `yaml:"max_sub_queries" json:"max_sub_queries"`
	// 缓存 TTL
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// DefaultExpanderConfig 返回默认扩展配置。
func DefaultExpanderConfig() ExpanderConfig {
	return ExpanderConfig{
		MaxParaphrases: 3,
		MaxSubQueries:  3,
		CacheTTL:       30 * time.Minute,
	}
}

// Expander 单次模型调用产出复述、HyDE 假设答案、子查询、意图与实体。
type Expander struct {
	config ExpanderConfig
	client llm.Client
	cache  ExpansionCache
	logger *zap.Logger
}

// NewExpander 创建查询扩展器。cache 可为 nil。
func NewExpander(config ExpanderConfig, client llm.Client, cache ExpansionCache, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		config: config,
		client: client,
		cache:  cache,
		logger: logger.With(zap.String("component", "query_expander")),
	}
}

type expansionPayload struct {
	Paraphrases        []string `json:"paraphrases"`
	HypotheticalAnswer string   `json:"hypothetical_answer"`
	SubQueries         []string `json:"sub_queries"`
	Intent             string   `json:"intent"`
	Entities           []string `json:"entities"`
}

// Expand 展开查询。任何失败都退化为 DegradedExpansion，不报错。
func (e *Expander) Expand(ctx context.Context, query string) Expansion {
	key := normalizeQuery(query)

	if e.cache != nil {
		var cached Expansion
		if ok, err := e.cache.GetJSON(ctx, "expansion:"+key, &cached); err == nil && ok {
			cached.FromCache = true
			return cached
		}
	}

	if e.client == nil {
		return DegradedExpansion(query)
	}

	prompt := fmt.Sprintf(`You rewrite search queries to improve retrieval. Respond with only a JSON object:
{"paraphrases": [up to %d alternative phrasings], "hypothetical_answer": "a short plausible answer to the query", "sub_queries": [up to %d simpler sub-questions, or empty if the query is atomic], "intent": "informational|navigational|comparison|procedural|analytical", "entities": [named entities mentioned in the query]}

Query: %s`, e.config.MaxParaphrases, e.config.MaxSubQueries, query)

	raw, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("query expansion failed, degrading", zap.Error(err))
		return DegradedExpansion(query)
	}

	var payload expansionPayload
	if !llm.ExtractJSON(raw, &payload) {
		e.logger.Warn("query expansion unparseable, degrading")
		return DegradedExpansion(query)
	}

	expansion := Expansion{
		Original:     query,
		Expanded:     []string{query},
		Hypothetical: strings.TrimSpace(payload.HypotheticalAnswer),
		SubQueries:   capList(payload.SubQueries, e.config.MaxSubQueries),
		Intent:       payload.Intent,
		Entities:     payload.Entities,
	}
	for _, p := range capList(payload.Paraphrases, e.config.MaxParaphrases) {
		p = strings.TrimSpace(p)
		if p != "" && !strings.EqualFold(p, query) {
			expansion.Expanded = append(expansion.Expanded, p)
		}
	}
	if expansion.Intent == "" {
		expansion.Intent = "informational"
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, "expansion:"+key, expansion, e.config.CacheTTL); err != nil {
			e.logger.Debug("expansion cache write failed", zap.Error(err))
		}
	}

	return expansion
}

// Probes 返回实际用于检索的查询变体；useHyDE 时把假设答案也当探针。
func (x Expansion) Probes(useHyDE bool) []string {
	probes := make([]string, 0, len(x.Expanded)+1)
	probes = append(probes, x.Expanded...)
	if useHyDE && x.Hypothetical != "" {
		probes = append(probes, x.Hypothetical)
	}
	return probes
}

func capList(list []string, max int) []string {
	cleaned := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if max > 0 && len(cleaned) > max {
		cleaned = cleaned[:max]
	}
	return cleaned
}

// normalizeQuery 小写、去首尾空白、合并空格，用作缓存键。
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}
