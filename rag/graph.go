package rag

import (
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/store"
)

// graphEdgeConfidence 共现边的固定置信度。
const graphEdgeConfidence = 0.8

// GraphBuilder 从块内实体共现关系派生知识图边。
type GraphBuilder struct {
	logger *zap.Logger
}

// NewGraphBuilder 创建图构建器。
func NewGraphBuilder(logger *zap.Logger) *GraphBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphBuilder{
		logger: logger.With(zap.String("component", "graph_builder")),
	}
}

// BuildEdges 为单个块生成共现边：块内本地抽取实体 ∪ 文档级实体中
// 名字逐字出现在块内容里的那些。实体数 < 2 时不产边；n 个实体产
// 出恰好 n·(n-1)/2 条无序对边，关系固定为 co-occurs。
func (g *GraphBuilder) BuildEdges(chunkID, content, localContext string, local []store.Entity, docEntities []string) []store.GraphEdge {
	entities := mergeEntities(content, local, docEntities)
	if len(entities) < 2 {
		return nil
	}

	var metadata map[string]any
	if localContext != "" {
		metadata = map[string]any{"context": localContext}
	}

	edges := make([]store.GraphEdge, 0, len(entities)*(len(entities)-1)/2)
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			edges = append(edges, store.GraphEdge{
				SourceEntity: entities[i].Name,
				SourceType:   entities[i].Type,
				Relationship: "co-occurs",
				TargetEntity: entities[j].Name,
				TargetType:   entities[j].Type,
				ChunkID:      chunkID,
				Confidence:   graphEdgeConfidence,
				Metadata:     metadata,
			})
		}
	}

	g.logger.Debug("edges built",
		zap.String("chunk_id", chunkID),
		zap.Int("entities", len(entities)),
		zap.Int("edges", len(edges)))

	return edges
}

// mergeEntities 合并本地实体与逐字命中的文档级实体，按名去重，
// 维持确定的输出顺序。
func mergeEntities(content string, local []store.Entity, docEntities []string) []store.Entity {
	seen := make(map[string]bool)
	out := make([]store.Entity, 0, len(local))

	for _, ent := range local {
		key := strings.ToLower(ent.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ent)
	}

	for _, name := range docEntities {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if key == "" || seen[key] {
			continue
		}
		if !strings.Contains(content, name) {
			continue
		}
		seen[key] = true
		out = append(out, store.Entity{Name: name, Type: "concept"})
	}

	if len(out) > maxEntitiesPerChunk {
		out = out[:maxEntitiesPerChunk]
	}
	return out
}
