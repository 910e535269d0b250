// Package handlers 实现 HTTP API 处理器:文档入库、混合检索、
// 检索增强问答与健康检查,以及统一的响应封装与错误映射。
package handlers
