// KnowledgeFlow 服务入口:文档入库、混合检索与检索增强问答的
// HTTP 服务,附带 Prometheus 指标端点与健康检查。
package main
