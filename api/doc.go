// Package api 定义 HTTP API 的请求/响应数据结构 (DTO)。
// 处理逻辑见 api/handlers 包。
package api
