package rag

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/knowledgeflow/store"
)

// 融合权重：keyword 最可信，graph 提供的只是结构性提示。
const (
	keywordFusionWeight = 1.0
	tagFusionWeight     = 0.8
	graphFusionWeight   = 0.6
	graphBaseScore      = 0.5
)

// RetrieveOptions 单次混合检索的参数。
type RetrieveOptions struct {
	TopK      int
	FolderIDs []string
}

// HybridRetriever 并发执行 keyword/tag/graph 三路检索后按权重融合。
// 三路都是对 store 的只读操作且相互独立；单路失败只损失该路贡献。
type HybridRetriever struct {
	store  store.Store
	logger *zap.Logger
}

// NewHybridRetriever 创建混合检索器。
func NewHybridRetriever(st store.Store, logger *zap.Logger) *HybridRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridRetriever{
		store:  st,
		logger: logger.With(zap.String("component", "hybrid_retriever")),
	}
}

// strategyHit 单路策略对某块的贡献。
type strategyHit struct {
	chunk store.Chunk
	score float64
}

// Retrieve 执行三路检索并融合，返回按融合分降序的前 TopK 块。
func (r *HybridRetriever) Retrieve(ctx context.Context, probes []string, entities []string, opts RetrieveOptions) ([]ScoredChunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	var keywordHits, tagHits, graphHits map[string]strategyHit

	// scatter-gather：三路并发，全部完成后再融合。
	// 策略内部失败降级为空结果，不取消兄弟策略。
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordHits = r.keywordStrategy(gctx, probes, opts.FolderIDs)
		return nil
	})
	g.Go(func() error {
		tagHits = r.tagStrategy(gctx, probes, entities, opts.FolderIDs)
		return nil
	})
	g.Go(func() error {
		graphHits = r.graphStrategy(gctx, entities, opts.FolderIDs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(keywordHits, tagHits, graphHits)

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})
	if len(fused) > opts.TopK {
		fused = fused[:opts.TopK]
	}

	r.logger.Debug("hybrid retrieval complete",
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("tag_hits", len(tagHits)),
		zap.Int("graph_hits", len(graphHits)),
		zap.Int("fused", len(fused)))

	return fused, nil
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenizeKeywords 小写字母数字分词，仅保留长度 > 2 的词。
func tokenizeKeywords(text string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// keywordStrategy 逐个查询变体做词法匹配打分：
// Σ(出现次数 / log(内容长度+1))，再乘 (0.5 + quality)；
// 同块跨变体取最大分。
func (r *HybridRetriever) keywordStrategy(ctx context.Context, probes []string, folderIDs []string) map[string]strategyHit {
	hits := make(map[string]strategyHit)

	for _, probe := range probes {
		keywords := tokenizeKeywords(probe)
		if len(keywords) == 0 {
			continue
		}

		candidates, err := r.store.ChunksByContent(ctx, folderIDs, keywords)
		if err != nil {
			r.logger.Warn("keyword strategy fetch failed", zap.Error(err))
			continue
		}

		for _, chunk := range candidates {
			lowered := strings.ToLower(chunk.Content)
			denom := math.Log(float64(len(chunk.Content)) + 1)
			if denom == 0 {
				continue
			}

			score := 0.0
			for _, kw := range keywords {
				if n := strings.Count(lowered, kw); n > 0 {
					score += float64(n) / denom
				}
			}
			if score == 0 {
				continue
			}
			score *= 0.5 + chunk.QualityScore

			if prev, ok := hits[chunk.ID]; !ok || score > prev.score {
				hits[chunk.ID] = strategyHit{chunk: chunk, score: score}
			}
		}
	}
	return hits
}

// tagStrategy 以所有变体中长度 > 3 的词 ∪ 实体名为检索词集，
// 与块的 semantic_tags 求交：0.3×重叠数 + 0.2×quality。
func (r *HybridRetriever) tagStrategy(ctx context.Context, probes []string, entities []string, folderIDs []string) map[string]strategyHit {
	termSet := make(map[string]bool)
	for _, probe := range probes {
		for _, w := range wordPattern.FindAllString(strings.ToLower(probe), -1) {
			if len(w) > 3 {
				termSet[w] = true
			}
		}
	}
	for _, ent := range entities {
		ent = strings.ToLower(strings.TrimSpace(ent))
		if ent != "" {
			termSet[ent] = true
		}
	}
	if len(termSet) == 0 {
		return nil
	}

	terms := make([]string, 0, len(termSet))
	for t := range termSet {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	candidates, err := r.store.ChunksByTags(ctx, folderIDs, terms)
	if err != nil {
		r.logger.Warn("tag strategy fetch failed", zap.Error(err))
		return nil
	}

	hits := make(map[string]strategyHit)
	for _, chunk := range candidates {
		overlap := 0
		for _, tag := range chunk.SemanticTags {
			if termSet[strings.ToLower(tag)] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		hits[chunk.ID] = strategyHit{
			chunk: chunk,
			score: 0.3*float64(overlap) + 0.2*chunk.QualityScore,
		}
	}
	return hits
}

// graphStrategy 沿共现边找到实体触达的块，基础分固定 0.5。
func (r *HybridRetriever) graphStrategy(ctx context.Context, entities []string, folderIDs []string) map[string]strategyHit {
	if len(entities) == 0 {
		return nil
	}

	edges, err := r.store.EdgesByEntities(ctx, entities)
	if err != nil {
		r.logger.Warn("graph strategy fetch failed", zap.Error(err))
		return nil
	}
	if len(edges) == 0 {
		return nil
	}

	idSet := make(map[string]bool)
	var ids []string
	for _, edge := range edges {
		if !idSet[edge.ChunkID] {
			idSet[edge.ChunkID] = true
			ids = append(ids, edge.ChunkID)
		}
	}

	chunks, err := r.store.ChunksByIDs(ctx, ids)
	if err != nil {
		r.logger.Warn("graph strategy chunk fetch failed", zap.Error(err))
		return nil
	}

	folderSet := make(map[string]bool, len(folderIDs))
	for _, f := range folderIDs {
		folderSet[f] = true
	}

	hits := make(map[string]strategyHit)
	for _, chunk := range chunks {
		if len(folderSet) > 0 && !folderSet[chunk.FolderID] {
			continue
		}
		hits[chunk.ID] = strategyHit{chunk: chunk, score: graphBaseScore}
	}
	return hits
}

// fuse 按块 ID 合并三路贡献，加权求和。
func fuse(keywordHits, tagHits, graphHits map[string]strategyHit) []ScoredChunk {
	type fusion struct {
		chunk      store.Chunk
		score      float64
		strategies []string
	}
	merged := make(map[string]*fusion)

	add := func(hits map[string]strategyHit, weight float64, strategy string) {
		for id, hit := range hits {
			f, ok := merged[id]
			if !ok {
				f = &fusion{chunk: hit.chunk}
				merged[id] = f
			}
			f.score += hit.score * weight
			f.strategies = append(f.strategies, strategy)
		}
	}
	add(keywordHits, keywordFusionWeight, StrategyKeyword)
	add(tagHits, tagFusionWeight, StrategyTag)
	add(graphHits, graphFusionWeight, StrategyGraph)

	out := make([]ScoredChunk, 0, len(merged))
	for _, f := range merged {
		sort.Strings(f.strategies)
		out = append(out, ScoredChunk{Chunk: f.chunk, Score: f.score, Strategies: f.strategies})
	}
	return out
}
