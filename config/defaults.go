// =============================================================================
// 📦 KnowledgeFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/knowledgeflow/llm"
	"github.com/BaSui01/knowledgeflow/rag"
	"github.com/BaSui01/knowledgeflow/store"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Database: store.DefaultConfig(),
		Redis:    DefaultRedisConfig(),
		LLM:      DefaultLLMConfig(),
		Pipeline: DefaultPipelineConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置。Addr 为空即不启用缓存。
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		OpenAI:     llm.DefaultOpenAIConfig(),
		Resilience: llm.DefaultResilientConfig(),
	}
}

// DefaultPipelineConfig 返回默认管道配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Chunking:  rag.DefaultChunkingConfig(),
		Expander:  rag.DefaultExpanderConfig(),
		Retrieval: rag.DefaultRetrieveConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}
