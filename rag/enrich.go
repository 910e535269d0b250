package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
)

// docPrefixLimit 送入模型的文档前缀上限（字符）。
const docPrefixLimit = 8000

// DocumentAnalysis 文档级语义元数据。
type DocumentAnalysis struct {
	Summary         string   `json:"summary"`
	KeyTopics       []string `json:"key_topics"`
	Entities        []string `json:"entities"`
	DocumentType    string   `json:"document_type"`
	ComplexityLevel string   `json:"complexity_level"`
}

// ChunkEnrichment 块级语义元数据。
type ChunkEnrichment struct {
	Context  string   `json:"context"`
	Concepts []string `json:"concepts"`
	Tags     []string `json:"tags"`
}

// Enricher 通过外部模型产出文档/块级语义元数据。纯增强层：
// 模型不可用或输出不可解析时返回安全默认值，从不让入库失败。
type Enricher struct {
	client llm.Client
	logger *zap.Logger
}

// NewEnricher 创建增强器。client 可为 nil（全走默认值）。
func NewEnricher(client llm.Client, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		client: client,
		logger: logger.With(zap.String("component", "enricher")),
	}
}

// AnalyzeDocument 产出文档级 summary/topics/entities/type/complexity。
func (e *Enricher) AnalyzeDocument(ctx context.Context, text, fileName string) DocumentAnalysis {
	fallback := defaultAnalysis(fileName)
	if e.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`Analyze the following document and respond with only a JSON object:
{"summary": "2-3 sentence summary", "key_topics": ["topic", ...], "entities": ["named entity", ...], "document_type": "report|article|manual|reference|general", "complexity_level": "basic|standard|advanced"}

File name: %s

Document:
%s`, fileName, truncate(text, docPrefixLimit))

	raw, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("document analysis failed, using defaults",
			zap.String("file", fileName),
			zap.Error(err))
		return fallback
	}

	var analysis DocumentAnalysis
	if !llm.ExtractJSON(raw, &analysis) || analysis.Summary == "" {
		e.logger.Warn("document analysis unparseable, using defaults",
			zap.String("file", fileName))
		return fallback
	}
	if analysis.DocumentType == "" {
		analysis.DocumentType = "general"
	}
	if analysis.ComplexityLevel == "" {
		analysis.ComplexityLevel = "standard"
	}
	return analysis
}

// EnrichChunk 为单个块产出局部 context/concepts/tags。
func (e *Enricher) EnrichChunk(ctx context.Context, chunk TextChunk, docSummary, fileName string) ChunkEnrichment {
	if e.client == nil {
		return ChunkEnrichment{}
	}

	prompt := fmt.Sprintf(`A document has been split into %d chunks. Given the document summary and one chunk, respond with only a JSON object:
{"context": "1-2 sentences situating this chunk within the document", "concepts": ["key concept", ...], "tags": ["lowercase-tag", ...]}

File name: %s
Document summary: %s
Chunk %d of %d:
%s`, chunk.Total, fileName, docSummary, chunk.Index+1, chunk.Total, truncate(chunk.Content, 2000))

	raw, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("chunk enrichment failed, using defaults",
			zap.String("file", fileName),
			zap.Int("chunk", chunk.Index),
			zap.Error(err))
		return ChunkEnrichment{}
	}

	var enrichment ChunkEnrichment
	if !llm.ExtractJSON(raw, &enrichment) {
		return ChunkEnrichment{}
	}
	for i, tag := range enrichment.Tags {
		enrichment.Tags[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	return enrichment
}

// defaultAnalysis 从文件名推导的保底分析结果。
func defaultAnalysis(fileName string) DocumentAnalysis {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return DocumentAnalysis{
		Summary:         fmt.Sprintf("Document: %s", strings.TrimSpace(base)),
		KeyTopics:       []string{},
		Entities:        []string{},
		DocumentType:    "general",
		ComplexityLevel: "standard",
	}
}
