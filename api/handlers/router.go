package handlers

import (
	"net/http"
)

// =============================================================================
// 🗺️ 路由装配
// =============================================================================

// RouterConfig 路由装配依赖
type RouterConfig struct {
	Ingest   *IngestHandler
	Query    *QueryHandler
	Health   *HealthHandler
	Recorder HTTPRecorder
}

// NewRouter 装配所有 API 路由并套上指标中间件
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/ingest", cfg.Ingest.HandleIngest)
	mux.HandleFunc("/v1/retrieve", cfg.Query.HandleRetrieve)
	mux.HandleFunc("/v1/answer", cfg.Query.HandleAnswer)
	mux.HandleFunc("/healthz", cfg.Health.HandleHealthz)
	mux.HandleFunc("/readyz", cfg.Health.HandleReady)

	return MetricsMiddleware(cfg.Recorder, mux)
}
