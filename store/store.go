package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config 数据库配置。
type Config struct {
	// Driver: sqlite 或 postgres
	Driver string `yaml:"driver" json:"driver"`
	// DSN：sqlite 为文件路径（:memory: 可用于测试），postgres 为连接串
	DSN string `yaml:"dsn" json:"dsn"`
}

// DefaultConfig 返回默认数据库配置。
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		DSN:    "knowledgeflow.db",
	}
}

// Store 是管道可见的持久化接口。所有写入都是一次性插入；
// 不提供任何 update 语义。
type Store interface {
	// 入库（Ingest 侧）
	SaveChunks(ctx context.Context, chunks []Chunk) error
	SaveEdges(ctx context.Context, edges []GraphEdge) error

	// 检索（read-only）
	ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)
	ChunksByContent(ctx context.Context, folderIDs []string, keywords []string) ([]Chunk, error)
	ChunksByTags(ctx context.Context, folderIDs []string, terms []string) ([]Chunk, error)
	EdgesByEntities(ctx context.Context, names []string) ([]GraphEdge, error)

	// 审计日志（append-only）
	AppendQueryExpansion(ctx context.Context, rec *QueryExpansionLog) error
	AppendRetrievalLog(ctx context.Context, rec *RetrievalLog) error
	AppendSelfEvaluation(ctx context.Context, rec *SelfEvaluation) error
	AppendCitations(ctx context.Context, recs []Citation) error
}

// GormStore 基于 gorm 的 Store 实现。
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 按配置打开数据库并迁移表结构。
func Open(cfg Config, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.AutoMigrate(
		&Chunk{},
		&GraphEdge{},
		&QueryExpansionLog{},
		&RetrievalLog{},
		&SelfEvaluation{},
		&Citation{},
	); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Ping 检查底层数据库连接，用于就绪探针。
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveChunks 批量插入块。失败对 Ingest 是致命的。
func (s *GormStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(chunks, 100).Error; err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

// SaveEdges 批量插入共现边。
func (s *GormStore) SaveEdges(ctx context.Context, edges []GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(edges, 200).Error; err != nil {
		return fmt.Errorf("save edges: %w", err)
	}
	return nil
}

// ChunksByIDs 按 ID 取块，顺序不保证。
func (s *GormStore) ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Chunk
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("chunks by ids: %w", err)
	}
	return out, nil
}

// ChunksByContent 返回内容包含任一关键词的块（folder 裁剪可选）。
// 精确的出现次数统计与打分由检索层在 Go 侧完成；这里只做候选收窄。
func (s *GormStore) ChunksByContent(ctx context.Context, folderIDs []string, keywords []string) ([]Chunk, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Model(&Chunk{})
	q = scopeFolders(q, folderIDs)

	clause, args := likeAny("lower(content)", keywords)
	var out []Chunk
	if err := q.Where(clause, args...).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("chunks by content: %w", err)
	}
	return out, nil
}

// ChunksByTags 返回 semantic_tags 含任一检索词的块。标签列是 JSON
// 文本，按序列化形式做包含匹配；准确的重叠计数在检索层完成。
func (s *GormStore) ChunksByTags(ctx context.Context, folderIDs []string, terms []string) ([]Chunk, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Model(&Chunk{})
	q = scopeFolders(q, folderIDs)

	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+t+`"`)
	}
	clause, args := likeAny("lower(semantic_tags)", quoted)
	var out []Chunk
	if err := q.Where(clause, args...).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("chunks by tags: %w", err)
	}
	return out, nil
}

// EdgesByEntities 返回任一端命中实体名的共现边。
func (s *GormStore) EdgesByEntities(ctx context.Context, names []string) ([]GraphEdge, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		lowered = append(lowered, strings.ToLower(n))
	}

	var out []GraphEdge
	err := s.db.WithContext(ctx).
		Where("lower(source_entity) IN ? OR lower(target_entity) IN ?", lowered, lowered).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("edges by entities: %w", err)
	}
	return out, nil
}

func (s *GormStore) AppendQueryExpansion(ctx context.Context, rec *QueryExpansionLog) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append query expansion: %w", err)
	}
	return nil
}

func (s *GormStore) AppendRetrievalLog(ctx context.Context, rec *RetrievalLog) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append retrieval log: %w", err)
	}
	return nil
}

func (s *GormStore) AppendSelfEvaluation(ctx context.Context, rec *SelfEvaluation) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append self evaluation: %w", err)
	}
	return nil
}

func (s *GormStore) AppendCitations(ctx context.Context, recs []Citation) error {
	if len(recs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&recs).Error; err != nil {
		return fmt.Errorf("append citations: %w", err)
	}
	return nil
}

// scopeFolders 可选的 folder 范围裁剪。
func scopeFolders(q *gorm.DB, folderIDs []string) *gorm.DB {
	if len(folderIDs) == 0 {
		return q
	}
	return q.Where("folder_id IN ?", folderIDs)
}

// likeAny 构造 OR 连接的 LIKE 条件（大小写不敏感，入参已小写）。
func likeAny(column string, terms []string) (string, []any) {
	parts := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, column+" LIKE ?")
		args = append(args, "%"+strings.ToLower(escapeLike(t))+"%")
	}
	return strings.Join(parts, " OR "), args
}

// escapeLike 转义 LIKE 通配符。
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
