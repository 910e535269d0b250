package rag

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/store"
)

// maxIngestBytes 入库原文上限。
const maxIngestBytes = 10 << 20

// IngestRequest 文档入库请求。RawText 与 BinaryContent 二选一。
type IngestRequest struct {
	FileName      string `json:"file_name"`
	FolderID      string `json:"folder_id,omitempty"`
	RawText       string `json:"raw_text,omitempty"`
	BinaryContent []byte `json:"binary_content,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
}

// IngestAnalysis 对外返回的文档级分析摘要。
type IngestAnalysis struct {
	Summary      string   `json:"summary"`
	Topics       []string `json:"topics"`
	EntityCount  int      `json:"entity_count"`
	DocumentType string   `json:"document_type"`
}

// IngestResult 入库结果。
type IngestResult struct {
	ChunksCreated    int             `json:"chunks_created"`
	ContentLength    int             `json:"content_length"`
	DocumentAnalysis *IngestAnalysis `json:"document_analysis,omitempty"`
}

// Ingestor 入库编排器：分块 → 文档/块级增强 → 实体抽取 → 共现边
// 构建 → 持久化。增强失败退默认值；store 写入失败才是致命错误。
type Ingestor struct {
	chunker   *Chunker
	enricher  *Enricher
	extractor *EntityExtractor
	graph     *GraphBuilder
	store     store.Store
	metrics   Metrics
	logger    *zap.Logger
}

// NewIngestor 创建入库编排器。
func NewIngestor(chunker *Chunker, enricher *Enricher, st store.Store, metrics Metrics, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		chunker:   chunker,
		enricher:  enricher,
		extractor: NewEntityExtractor(),
		graph:     NewGraphBuilder(logger),
		store:     st,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "ingestor")),
	}
}

// Ingest 处理一份文档：校验 → 分块 → 增强 → 建边 → 写库。
func (in *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	start := time.Now()

	text, err := in.resolveText(req)
	if err != nil {
		return nil, err
	}

	chunks := in.chunker.Split(text)
	analysis := in.enricher.AnalyzeDocument(ctx, text, req.FileName)

	var records []store.Chunk
	var edges []store.GraphEdge
	for _, chunk := range chunks {
		enrichment := in.enricher.EnrichChunk(ctx, chunk, analysis.Summary, req.FileName)
		entities := in.extractor.Extract(chunk.Content)

		record := store.Chunk{
			ID:              uuid.NewString(),
			SourceFile:      req.FileName,
			Content:         chunk.Content,
			ChunkIndex:      chunk.Index,
			TotalChunks:     chunk.Total,
			FolderID:        req.FolderID,
			DocumentSummary: analysis.Summary,
			DocumentContext: enrichment.Context,
			ChunkType:       chunk.ChunkType,
			SemanticTags:    enrichment.Tags,
			KeyConcepts:     enrichment.Concepts,
			Entities:        entities,
			QualityScore:    chunk.QualityScore,
			TokenCount:      chunk.TokenCount,
			Metadata: map[string]any{
				"document_type": analysis.DocumentType,
				"complexity":    analysis.ComplexityLevel,
				"mime_type":     req.MimeType,
			},
			CreatedAt: time.Now(),
		}
		records = append(records, record)
		edges = append(edges, in.graph.BuildEdges(record.ID, chunk.Content, enrichment.Context, entities, analysis.Entities)...)
	}

	// store 写入失败意味真实的数据丢失风险，必须上浮
	if err := in.store.SaveChunks(ctx, records); err != nil {
		return nil, err
	}
	if err := in.store.SaveEdges(ctx, edges); err != nil {
		return nil, err
	}

	if in.metrics != nil {
		in.metrics.ObserveIngest(len(records), time.Since(start).Seconds())
	}
	in.logger.Info("document ingested",
		zap.String("file", req.FileName),
		zap.Int("chunks", len(records)),
		zap.Int("edges", len(edges)),
		zap.Duration("elapsed", time.Since(start)))

	return &IngestResult{
		ChunksCreated: len(records),
		ContentLength: len(text),
		DocumentAnalysis: &IngestAnalysis{
			Summary:      analysis.Summary,
			Topics:       analysis.KeyTopics,
			EntityCount:  len(analysis.Entities),
			DocumentType: analysis.DocumentType,
		},
	}, nil
}

// resolveText 校验请求并取出待处理文本。
func (in *Ingestor) resolveText(req IngestRequest) (string, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return "", invalidInput("file_name", "must not be empty")
	}
	if req.FolderID != "" && len(req.FolderID) > 64 {
		return "", invalidInput("folder_id", "must be at most 64 characters")
	}

	text := req.RawText
	if text == "" && len(req.BinaryContent) > 0 {
		if !utf8.Valid(req.BinaryContent) {
			return "", invalidInput("binary_content", "not valid UTF-8 text; binary formats are handled by the extraction service")
		}
		text = string(req.BinaryContent)
	}
	if strings.TrimSpace(text) == "" {
		return "", invalidInput("raw_text", "document has no extractable text")
	}
	if len(text) > maxIngestBytes {
		return "", invalidInput("raw_text", "document exceeds maximum size")
	}
	return text, nil
}
