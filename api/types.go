package api

import (
	"github.com/BaSui01/knowledgeflow/rag"
)

// =============================================================================
// 📥 入库类型
// =============================================================================

// IngestRequest 代表文档入库请求。
// @Description 文档入库请求结构
type IngestRequest struct {
	// 原始文件名（含扩展名）
	FileName string `json:"file_name" example:"q3_report.pdf"`
	// 可选的文件夹作用域
	FolderID string `json:"folder_id,omitempty" example:"finance"`
	// 纯文本内容（与 binary_content 二选一）
	RawText string `json:"raw_text,omitempty"`
	// Base64 编码的二进制内容
	BinaryContent []byte `json:"binary_content,omitempty"`
	// 二进制内容的 MIME 类型
	MimeType string `json:"mime_type,omitempty" example:"text/markdown"`
}

// IngestResponse 代表文档入库结果。
// @Description 文档入库响应结构
type IngestResponse struct {
	// 生成的块数量
	ChunksCreated int `json:"chunks_created" example:"12"`
	// 原文字符长度
	ContentLength int `json:"content_length" example:"14500"`
	// 文档级分析摘要
	DocumentAnalysis *rag.IngestAnalysis `json:"document_analysis,omitempty"`
}

// =============================================================================
// 🔍 检索类型
// =============================================================================

// RetrieveRequest 代表独立检索请求。
// @Description 检索请求结构
type RetrieveRequest struct {
	// 检索查询文本
	Query string `json:"query" example:"What drove Q3 revenue growth?"`
	// 可选的文件夹作用域
	FolderIDs []string `json:"folder_ids,omitempty"`
	// 返回结果数量上限（默认 5）
	TopK int `json:"top_k,omitempty" example:"5"`
	// 进入重排序的候选数量上限
	RerankTopN int `json:"rerank_top_n,omitempty" example:"20"`
	// 是否启用查询扩展（默认开启）
	UseQueryExpansion *bool `json:"use_query_expansion,omitempty"`
	// 是否启用 HyDE 假设文档（默认开启）
	UseHyDE *bool `json:"use_hyde,omitempty"`
	// 是否启用重排序（默认开启）
	UseReranking *bool `json:"use_reranking,omitempty"`
	// 是否启用多跳检索（默认关闭）
	UseMultiHop *bool `json:"use_multi_hop,omitempty"`
	// 多跳最大深度
	MaxHopDepth int `json:"max_hop_depth,omitempty" example:"2"`
	// 置信度过滤阈值（0-1）
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// RetrieveResponse 是 rag.RetrieveResult 的别名,直接序列化流水线结果。
type RetrieveResponse = rag.RetrieveResult

// =============================================================================
// 💬 问答类型
// =============================================================================

// AnswerRequest 代表检索增强问答请求。
// @Description 问答请求结构
type AnswerRequest struct {
	// 会话消息,最后一条 user 消息作为查询
	Messages []rag.Message `json:"messages"`
	// 可选的人设配置
	Agent *rag.AgentConfig `json:"agent,omitempty"`
	// 可选的文件夹作用域
	FolderIDs []string `json:"folder_ids,omitempty"`
	// 是否启用 Self-RAG 检索决策（默认开启）
	EnableSelfRAG *bool `json:"enable_self_rag,omitempty"`
	// 是否启用 Corrective RAG 证据过滤（默认开启）
	EnableCorrectiveRAG *bool `json:"enable_corrective_rag,omitempty"`
	// 是否启用幻觉检测（默认开启）
	EnableHallucinationCheck *bool `json:"enable_hallucination_check,omitempty"`
}

// AnswerResponse 是 rag.AnswerResult 的别名,直接序列化流水线结果。
type AnswerResponse = rag.AnswerResult
