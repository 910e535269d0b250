package rag

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
	"github.com/BaSui01/knowledgeflow/store"
)

// apologyResponse 生成阶段彻底失败时的兜底文案。
const apologyResponse = "I'm sorry, I'm unable to answer right now. Please try again in a moment."

// RetrieveConfig 单次检索调用的配置。
type RetrieveConfig struct {
	TopK                int      `yaml:"top_k" json:"top_k"`
	RerankTopN          int      `yaml:"rerank_top_n" json:"rerank_top_n"`
	UseQueryExpansion   bool     `yaml:"use_query_expansion" json:"use_query_expansion"`
	UseHyDE             bool     `yaml:"use_hyde" json:"use_hyde"`
	UseReranking        bool     `yaml:"use_reranking" json:"use_reranking"`
	UseMultiHop         bool     `yaml:"use_multi_hop" json:"use_multi_hop"`
	MaxHopDepth         int      `yaml:"max_hop_depth" json:"max_hop_depth"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" json:"confidence_threshold"`
	FolderIDs           []string `yaml:"-" json:"folder_ids,omitempty"`
}

// DefaultRetrieveConfig 返回默认检索配置。
func DefaultRetrieveConfig() RetrieveConfig {
	return RetrieveConfig{
		TopK:                5,
		RerankTopN:          3,
		UseQueryExpansion:   true,
		UseHyDE:             true,
		UseReranking:        true,
		UseMultiHop:         false,
		MaxHopDepth:         2,
		ConfidenceThreshold: 0.3,
	}
}

// RetrieveMetadata 检索调用的元信息。
type RetrieveMetadata struct {
	TotalRetrieved int      `json:"total_retrieved"`
	LatencyMS      int64    `json:"latency_ms"`
	StrategiesUsed []string `json:"strategies_used"`
	Reranked       bool     `json:"reranked"`
	MultiHop       bool     `json:"multi_hop"`
	HopStopReason  string   `json:"hop_stop_reason,omitempty"`
}

// RetrieveResult 检索调用的对外结果。
type RetrieveResult struct {
	Chunks         []ChunkRef       `json:"chunks"`
	QueryExpansion *Expansion       `json:"query_expansion_summary,omitempty"`
	Metadata       RetrieveMetadata `json:"metadata"`
}

// AnswerToggles 回答控制环的开关，默认全开。
type AnswerToggles struct {
	EnableSelfRAG            bool `json:"enable_self_rag"`
	EnableCorrectiveRAG      bool `json:"enable_corrective_rag"`
	EnableHallucinationCheck bool `json:"enable_hallucination_check"`
}

// DefaultAnswerToggles 返回默认开关。
func DefaultAnswerToggles() AnswerToggles {
	return AnswerToggles{
		EnableSelfRAG:            true,
		EnableCorrectiveRAG:      true,
		EnableHallucinationCheck: true,
	}
}

// AnswerMetadata 回答调用的元信息。
type AnswerMetadata struct {
	RetrievalDecision     string `json:"retrieval_decision"`
	ChunksUsed            int    `json:"chunks_used"`
	CorrectiveEvaluation  string `json:"corrective_evaluation,omitempty"`
	HallucinationDetected bool   `json:"hallucination_detected"`
	HallucinationCount    int    `json:"hallucination_count"`
}

// AnswerResult 回答调用的对外结果。
type AnswerResult struct {
	Response   string         `json:"response"`
	Citations  []CitationRef  `json:"citations"`
	Confidence float64        `json:"confidence"`
	Metadata   AnswerMetadata `json:"metadata"`
}

// Pipeline 查询时的顶层编排：
//
//	DECIDE_RETRIEVAL → [RETRIEVE → FILTER → (MULTIHOP)] → GENERATE →
//	CHECK_HALLUCINATION → LOG
//
// 每个阶段独立 fail-soft；只有生成阶段本身或 store 写入失败才会
// 影响调用方可见的结果。
type Pipeline struct {
	store         store.Store
	expander      *Expander
	retriever     *HybridRetriever
	reranker      *Reranker
	multiHop      *MultiHop
	selfRAG       *SelfRAG
	corrective    *Corrective
	generator     *Generator
	hallucination *HallucinationChecker
	metrics       Metrics
	logger        *zap.Logger
}

// NewPipeline 组装查询管道。client 经 Resilient 包装后传入；
// cache 与 metrics 可为 nil。
func NewPipeline(st store.Store, client llm.Client, cache ExpansionCache, metrics Metrics, logger *zap.Logger) *Pipeline {
	return NewPipelineWithExpander(DefaultExpanderConfig(), st, client, cache, metrics, logger)
}

// NewPipelineWithExpander 与 NewPipeline 相同,但使用给定的查询扩展配置。
func NewPipelineWithExpander(expander ExpanderConfig, st store.Store, client llm.Client, cache ExpansionCache, metrics Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	retriever := NewHybridRetriever(st, logger)
	return &Pipeline{
		store:         st,
		expander:      NewExpander(expander, client, cache, logger),
		retriever:     retriever,
		reranker:      NewReranker(client, logger),
		multiHop:      NewMultiHop(client, retriever, logger),
		selfRAG:       NewSelfRAG(client, logger),
		corrective:    NewCorrective(client, logger),
		generator:     NewGenerator(client, logger),
		hallucination: NewHallucinationChecker(client, logger),
		metrics:       metrics,
		logger:        logger.With(zap.String("component", "pipeline")),
	}
}

// Retrieve 执行检索管道并返回引用列表。
func (p *Pipeline) Retrieve(ctx context.Context, query string, cfg RetrieveConfig) (*RetrieveResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalidInput("query", "must not be empty")
	}

	scored, expansion, meta, err := p.retrieve(ctx, query, cfg)
	if err != nil {
		return nil, err
	}

	refs := make([]ChunkRef, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < cfg.ConfidenceThreshold {
			continue
		}
		refs = append(refs, ChunkRef{
			ChunkID:        sc.Chunk.ID,
			RelevanceScore: sc.Score,
			Strategy:       strings.Join(sc.Strategies, "+"),
		})
	}
	meta.TotalRetrieved = len(refs)

	return &RetrieveResult{
		Chunks:         refs,
		QueryExpansion: expansion,
		Metadata:       meta,
	}, nil
}

// retrieve 是 Retrieve 与 Answer 共用的内部检索流程。
func (p *Pipeline) retrieve(ctx context.Context, query string, cfg RetrieveConfig) ([]ScoredChunk, *Expansion, RetrieveMetadata, error) {
	start := time.Now()
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RerankTopN <= 0 {
		cfg.RerankTopN = 3
	}
	if cfg.MaxHopDepth <= 0 {
		cfg.MaxHopDepth = 2
	}

	expansion := DegradedExpansion(query)
	if cfg.UseQueryExpansion {
		expansion = p.expander.Expand(ctx, query)
		p.logExpansion(ctx, expansion)
	}

	scored, err := p.retriever.Retrieve(ctx, expansion.Probes(cfg.UseHyDE), expansion.Entities, RetrieveOptions{
		TopK:      cfg.TopK,
		FolderIDs: cfg.FolderIDs,
	})
	if err != nil {
		return nil, nil, RetrieveMetadata{}, err
	}

	meta := RetrieveMetadata{
		StrategiesUsed: strategiesUsed(scored),
	}

	if cfg.UseReranking {
		scored, meta.Reranked = p.reranker.Rerank(ctx, query, scored, cfg.RerankTopN)
	}

	if cfg.UseMultiHop {
		hop := p.multiHop.Expand(ctx, query, scored, cfg.FolderIDs, cfg.MaxHopDepth)
		scored = append(scored, hop.Added...)
		meta.MultiHop = true
		meta.HopStopReason = string(hop.StopReason)
	}

	meta.TotalRetrieved = len(scored)
	meta.LatencyMS = time.Since(start).Milliseconds()

	p.logRetrieval(ctx, query, scored, meta)
	if p.metrics != nil {
		p.metrics.ObserveRetrieve(len(scored), time.Since(start).Seconds())
	}

	return scored, &expansion, meta, nil
}

// Answer 执行回答控制环。
func (p *Pipeline) Answer(ctx context.Context, messages []Message, agent *AgentConfig, folderIDs []string, toggles AnswerToggles) (*AnswerResult, error) {
	start := time.Now()

	if len(messages) == 0 {
		return nil, invalidInput("messages", "must not be empty")
	}
	query := LastUserMessage(messages)
	if strings.TrimSpace(query) == "" {
		return nil, invalidInput("messages", "must contain a user message")
	}

	// DECIDE_RETRIEVAL：关掉 Self-RAG 时跳过决策、直接检索；
	// 开着时 no_retrieve 整体短路检索、重排与多跳。
	decision := DecisionRetrieve
	if toggles.EnableSelfRAG {
		decision = p.selfRAG.Decide(ctx, query, messages[:len(messages)-1])
	}

	var evidence []ScoredChunk
	correctiveSummary := ""
	if decision == DecisionRetrieve {
		cfg := DefaultRetrieveConfig()
		cfg.FolderIDs = folderIDs
		scored, _, _, err := p.retrieve(ctx, query, cfg)
		if err != nil {
			return nil, err
		}
		evidence = scored

		if toggles.EnableCorrectiveRAG {
			cr := p.corrective.Filter(ctx, query, evidence)
			evidence = cr.Kept
			correctiveSummary = cr.OverallQuality
		}
	}

	// GENERATE：生成阶段彻底失败才降级为道歉文案
	gen, genErr := p.generator.Generate(ctx, messages, evidence, agent)
	if genErr != nil {
		p.logger.Error("generation failed", zap.Error(genErr))
		if p.metrics != nil {
			p.metrics.IncLLMFailure("generate")
		}
		gen = GenerateResult{Response: apologyResponse}
	}

	// CHECK_HALLUCINATION：纯建议性
	var report HallucinationReport
	if toggles.EnableHallucinationCheck && genErr == nil {
		report = p.hallucination.Check(ctx, query, gen.Response, evidence)
	}

	// LOG：审计写入失败对 Answer 是致命的
	if err := p.appendAudit(ctx, query, decision, gen, report, len(evidence), correctiveSummary != ""); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.ObserveAnswer(string(decision), report.Detected, time.Since(start).Seconds())
	}

	return &AnswerResult{
		Response:   gen.Response,
		Citations:  gen.Citations,
		Confidence: gen.Confidence,
		Metadata: AnswerMetadata{
			RetrievalDecision:     string(decision),
			ChunksUsed:            len(evidence),
			CorrectiveEvaluation:  correctiveSummary,
			HallucinationDetected: report.Detected,
			HallucinationCount:    len(report.Details),
		},
	}, nil
}

// appendAudit 落 SelfEvaluation 与 Citation 记录。
func (p *Pipeline) appendAudit(ctx context.Context, query string, decision RetrievalDecision, gen GenerateResult, report HallucinationReport, chunksUsed int, correctiveApplied bool) error {
	details := make([]string, 0, len(report.Details))
	for _, d := range report.Details {
		details = append(details, d.Claim+": "+d.Issue)
	}

	if err := p.store.AppendSelfEvaluation(ctx, &store.SelfEvaluation{
		Query:                query,
		RetrievalDecision:    string(decision),
		ChunksUsed:           chunksUsed,
		CorrectiveApplied:    correctiveApplied,
		HallucinationFlag:    report.Detected,
		HallucinationDetails: strings.Join(details, "; "),
		Confidence:           gen.Confidence,
		FinalResponse:        gen.Response,
	}); err != nil {
		return err
	}

	if len(gen.Citations) == 0 {
		return nil
	}
	records := make([]store.Citation, 0, len(gen.Citations))
	for _, c := range gen.Citations {
		records = append(records, store.Citation{
			ChunkID:         c.ChunkID,
			SourceFile:      c.SourceFile,
			CitationText:    c.CitationText,
			ConfidenceScore: c.ConfidenceScore,
		})
	}
	return p.store.AppendCitations(ctx, records)
}

// logExpansion 扩展审计是 write-only 记录，写失败只告警。
func (p *Pipeline) logExpansion(ctx context.Context, x Expansion) {
	if x.FromCache {
		return
	}
	err := p.store.AppendQueryExpansion(ctx, &store.QueryExpansionLog{
		OriginalQuery: x.Original,
		Expanded:      x.Expanded,
		Hypothetical:  x.Hypothetical,
		SubQueries:    x.SubQueries,
		Intent:        x.Intent,
		Entities:      x.Entities,
	})
	if err != nil {
		p.logger.Warn("query expansion log failed", zap.Error(err))
	}
}

func (p *Pipeline) logRetrieval(ctx context.Context, query string, scored []ScoredChunk, meta RetrieveMetadata) {
	err := p.store.AppendRetrievalLog(ctx, &store.RetrievalLog{
		Query:          query,
		StrategiesUsed: meta.StrategiesUsed,
		TotalRetrieved: len(scored),
		Reranked:       meta.Reranked,
		MultiHop:       meta.MultiHop,
		LatencyMS:      meta.LatencyMS,
	})
	if err != nil {
		p.logger.Warn("retrieval log failed", zap.Error(err))
	}
}

// strategiesUsed 汇总结果中实际命中的策略名。
func strategiesUsed(scored []ScoredChunk) []string {
	seen := make(map[string]bool)
	var out []string
	for _, strategy := range []string{StrategyKeyword, StrategyTag, StrategyGraph} {
		for _, sc := range scored {
			if seen[strategy] {
				break
			}
			for _, s := range sc.Strategies {
				if s == strategy {
					seen[strategy] = true
					out = append(out, strategy)
					break
				}
			}
		}
	}
	return out
}
