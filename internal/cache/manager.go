package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/rag"
)

// ErrCacheMiss 表示缓存中不存在该键
var ErrCacheMiss = errors.New("cache: key not found")

// ===== ⚙️ 配置 =====

// Config Redis 缓存配置
type Config struct {
	// Addr Redis 地址 (host:port)
	Addr string `yaml:"addr" json:"addr"`
	// Password Redis 密码
	Password string `yaml:"password" json:"password"`
	// DB Redis 数据库编号
	DB int `yaml:"db" json:"db"`
	// DefaultTTL 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	// MaxRetries 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// PoolSize 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// MinIdleConns 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`
	// HealthCheckInterval 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DB:                  0,
		DefaultTTL:          time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// ===== 💾 缓存管理器 =====

// Recorder receives cache hit/miss observations. Implemented by the
// metrics collector; a nil Recorder disables recording.
type Recorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// Manager Redis 缓存管理器
type Manager struct {
	client   *redis.Client
	config   Config
	logger   *zap.Logger
	recorder Recorder

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ rag.ExpansionCache = (*Manager)(nil)

// NewManager 创建缓存管理器并验证连接
func NewManager(config Config, recorder Recorder, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", config.Addr, err)
	}

	m := &Manager{
		client:   client,
		config:   config,
		logger:   logger.With(zap.String("component", "cache")),
		recorder: recorder,
		done:     make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("缓存管理器已启动",
		zap.String("addr", config.Addr),
		zap.Duration("default_ttl", config.DefaultTTL))
	return m, nil
}

// healthCheckLoop 定期检查 Redis 连接健康状态
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := m.client.Ping(ctx).Err(); err != nil {
				m.logger.Warn("Redis 健康检查失败", zap.Error(err))
			}
			cancel()
		}
	}
}

// ===== 🔑 基本操作 =====

// Get 获取字符串值,键不存在时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if err := m.checkClosed(); err != nil {
		return "", err
	}
	val, err := m.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache: get %q: %w", key, err)
	}
	return val, nil
}

// Set 写入字符串值,ttl 为 0 时使用默认过期时间
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// GetJSON 获取并反序列化 JSON 值。键不存在时返回 (false, nil),
// 解码失败或 Redis 出错时返回 error。
func (m *Manager) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	if err := m.checkClosed(); err != nil {
		return false, err
	}
	data, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		m.recordMiss()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	m.recordHit()
	return true, nil
}

// SetJSON 序列化并写入 JSON 值,ttl 为 0 时使用默认过期时间
func (m *Manager) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// Delete 删除键
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Exists 检查键是否存在
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	if err := m.checkClosed(); err != nil {
		return false, err
	}
	n, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	return m.client.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return m.client.Close()
}

func (m *Manager) checkClosed() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New("cache: manager is closed")
	}
	return nil
}

func (m *Manager) recordHit() {
	if m.recorder != nil {
		m.recorder.RecordCacheHit("expansion")
	}
}

func (m *Manager) recordMiss() {
	if m.recorder != nil {
		m.recorder.RecordCacheMiss("expansion")
	}
}
