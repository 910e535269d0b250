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
// 🔍 检索与问答接口 Handler
// =============================================================================

// QueryService 检索与问答能力,由 rag.Pipeline 实现。
type QueryService interface {
	Retrieve(ctx context.Context, query string, cfg rag.RetrieveConfig) (*rag.RetrieveResult, error)
	Answer(ctx context.Context, messages []rag.Message, agent *rag.AgentConfig, folderIDs []string, toggles rag.AnswerToggles) (*rag.AnswerResult, error)
}

// QueryHandler 检索与问答处理器
type QueryHandler struct {
	service   QueryService
	retrieval rag.RetrieveConfig
	logger    *zap.Logger
}

// NewQueryHandler 创建检索处理器。retrieval 作为服务级默认配置,
// 请求中的显式字段覆盖之。
func NewQueryHandler(service QueryService, retrieval rag.RetrieveConfig, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		service:   service,
		retrieval: retrieval,
		logger:    logger.With(zap.String("handler", "query")),
	}
}

// HandleRetrieve 处理独立检索请求
// @Summary 混合检索
// @Description 执行查询扩展、混合检索与重排序,返回评分后的块引用
// @Tags 检索
// @Accept json
// @Produce json
// @Param request body api.RetrieveRequest true "检索请求"
// @Success 200 {object} Response "检索结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Router /v1/retrieve [post]
func (h *QueryHandler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !ValidateContentType(w, r) {
		return
	}

	var req api.RetrieveRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	cfg := h.retrieveConfig(&req)

	start := time.Now()
	result, err := h.service.Retrieve(r.Context(), req.Query, cfg)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("retrieve completed",
		zap.Int("results", len(result.Chunks)),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, result)
}

// HandleAnswer 处理检索增强问答请求
// @Summary 检索增强问答
// @Description 执行 Self-RAG 决策、检索、证据过滤、生成与幻觉检测
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.AnswerRequest true "问答请求"
// @Success 200 {object} Response "问答结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "内部错误"
// @Router /v1/answer [post]
func (h *QueryHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !ValidateContentType(w, r) {
		return
	}

	var req api.AnswerRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	toggles := rag.DefaultAnswerToggles()
	if req.EnableSelfRAG != nil {
		toggles.EnableSelfRAG = *req.EnableSelfRAG
	}
	if req.EnableCorrectiveRAG != nil {
		toggles.EnableCorrectiveRAG = *req.EnableCorrectiveRAG
	}
	if req.EnableHallucinationCheck != nil {
		toggles.EnableHallucinationCheck = *req.EnableHallucinationCheck
	}

	start := time.Now()
	result, err := h.service.Answer(r.Context(), req.Messages, req.Agent, req.FolderIDs, toggles)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("answer completed",
		zap.Int("citations", len(result.Citations)),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, result)
}

// retrieveConfig 以服务级默认值为底,应用请求中的显式覆盖。
func (h *QueryHandler) retrieveConfig(req *api.RetrieveRequest) rag.RetrieveConfig {
	cfg := h.retrieval
	cfg.FolderIDs = req.FolderIDs

	if req.TopK > 0 {
		cfg.TopK = req.TopK
	}
	if req.RerankTopN > 0 {
		cfg.RerankTopN = req.RerankTopN
	}
	if req.MaxHopDepth > 0 {
		cfg.MaxHopDepth = req.MaxHopDepth
	}
	if req.UseQueryExpansion != nil {
		cfg.UseQueryExpansion = *req.UseQueryExpansion
	}
	if req.UseHyDE != nil {
		cfg.UseHyDE = *req.UseHyDE
	}
	if req.UseReranking != nil {
		cfg.UseReranking = *req.UseReranking
	}
	if req.UseMultiHop != nil {
		cfg.UseMultiHop = *req.UseMultiHop
	}
	if req.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *req.ConfidenceThreshold
	}
	return cfg
}
