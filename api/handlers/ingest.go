package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/api"
	"github.com/BaSui01/knowledgeflow/rag"
)

// =============================================================================
// 📥 入库接口 Handler
// =============================================================================

// IngestService 文档入库能力,由 rag.Ingestor 实现。
type IngestService interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
}

// IngestHandler 文档入库处理器
type IngestHandler struct {
	service IngestService
	logger  *zap.Logger
}

// NewIngestHandler 创建入库处理器
func NewIngestHandler(service IngestService, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "ingest")),
	}
}

// HandleIngest 处理文档入库请求
// @Summary 文档入库
// @Description 接收文档并执行分块、增强与实体图构建
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.IngestRequest true "入库请求"
// @Success 200 {object} Response "入库结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Router /v1/ingest [post]
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !ValidateContentType(w, r) {
		return
	}

	var req api.IngestRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	start := time.Now()
	result, err := h.service.Ingest(r.Context(), rag.IngestRequest{
		FileName:      req.FileName,
		FolderID:      req.FolderID,
		RawText:       req.RawText,
		BinaryContent: req.BinaryContent,
		MimeType:      req.MimeType,
	})
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("document ingested",
		zap.String("file_name", req.FileName),
		zap.Int("chunks", result.ChunksCreated),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, api.IngestResponse{
		ChunksCreated:    result.ChunksCreated,
		ContentLength:    result.ContentLength,
		DocumentAnalysis: result.DocumentAnalysis,
	})
}
