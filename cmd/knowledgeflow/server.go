package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/api/handlers"
	"github.com/BaSui01/knowledgeflow/config"
	"github.com/BaSui01/knowledgeflow/internal/cache"
	"github.com/BaSui01/knowledgeflow/internal/metrics"
	"github.com/BaSui01/knowledgeflow/internal/server"
	"github.com/BaSui01/knowledgeflow/llm"
	"github.com/BaSui01/knowledgeflow/rag"
	"github.com/BaSui01/knowledgeflow/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 KnowledgeFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	store     *store.GormStore
	cache     *cache.Manager
	collector *metrics.Collector

	// Handlers
	healthHandler *handlers.HealthHandler
	ingestHandler *handlers.IngestHandler
	queryHandler  *handlers.QueryHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.collector = metrics.NewCollector("knowledgeflow", s.logger)

	// 2. 初始化存储、缓存与管道
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 初始化存储、LLM 客户端、缓存与 RAG 管道
func (s *Server) initPipeline() error {
	// 数据库
	st, err := store.Open(s.cfg.Database, s.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st

	// LLM 客户端。未配置 API Key 时管道以降级模式运行：
	// 各增强阶段直接走文档化的默认值。
	var client llm.Client
	if s.cfg.LLM.OpenAI.APIKey != "" {
		client = llm.NewResilient(
			llm.NewOpenAIClient(s.cfg.LLM.OpenAI, s.logger),
			s.cfg.LLM.Resilience,
			s.logger,
		)
		s.logger.Info("LLM client initialized", zap.String("model", s.cfg.LLM.OpenAI.Model))
	} else {
		s.logger.Warn("LLM API key not configured, pipeline runs degraded")
	}

	// 查询扩展缓存（可选）
	var expCache rag.ExpansionCache
	if s.cfg.Redis.Addr != "" {
		cacheConfig := cache.DefaultConfig()
		cacheConfig.Addr = s.cfg.Redis.Addr
		cacheConfig.Password = s.cfg.Redis.Password
		cacheConfig.DB = s.cfg.Redis.DB
		cacheConfig.PoolSize = s.cfg.Redis.PoolSize

		manager, err := cache.NewManager(cacheConfig, s.collector, s.logger)
		if err != nil {
			s.logger.Warn("Redis not available, expansion cache disabled", zap.Error(err))
		} else {
			s.cache = manager
			expCache = manager
		}
	}

	// RAG 管道与入库编排器
	chunker := rag.NewChunker(s.cfg.Pipeline.Chunking, s.logger)
	enricher := rag.NewEnricher(client, s.logger)
	ingestor := rag.NewIngestor(chunker, enricher, st, s.collector, s.logger)
	pipeline := rag.NewPipelineWithExpander(s.cfg.Pipeline.Expander, st, client, expCache, s.collector, s.logger)

	// Handlers
	s.ingestHandler = handlers.NewIngestHandler(ingestor, s.logger)
	s.queryHandler = handlers.NewQueryHandler(pipeline, s.cfg.Pipeline.Retrieval, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", st.Ping))
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	router := handlers.NewRouter(handlers.RouterConfig{
		Ingest:   s.ingestHandler,
		Query:    s.queryHandler,
		Health:   s.healthHandler,
		Recorder: s.collector,
	})

	// 中间件链
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	handler := Chain(router, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞直到收到终止信号或任一服务异常退出,然后优雅关闭。
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var httpErrs, metricsErrs <-chan error
	if s.httpManager != nil {
		httpErrs = s.httpManager.Errors()
	}
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	select {
	case sig := <-quit:
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-httpErrs:
		s.logger.Error("HTTP server exited unexpectedly", zap.Error(err))
	case err := <-metricsErrs:
		s.logger.Error("Metrics server exited unexpectedly", zap.Error(err))
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
