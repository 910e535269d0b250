// Package store persists the pipeline's durable state: chunks and graph
// edges written once at ingestion, plus append-only audit logs written at
// query time. Nothing in this package ever updates a row.
package store

import (
	"time"
)

// Chunk 是检索的原子单元，入库后不可变。
type Chunk struct {
	ID              string         `gorm:"primaryKey;size:64" json:"id"`
	SourceFile      string         `gorm:"size:512;index" json:"source_file"`
	Content         string         `gorm:"type:text" json:"content"`
	ChunkIndex      int            `json:"chunk_index"`
	TotalChunks     int            `json:"total_chunks"`
	FolderID        string         `gorm:"size:64;index" json:"folder_id"`
	DocumentSummary string         `gorm:"type:text" json:"document_summary"`
	DocumentContext string         `gorm:"type:text" json:"document_context"`
	ChunkType       string         `gorm:"size:16" json:"chunk_type"` // intro / content / conclusion
	SemanticTags    StringList     `gorm:"type:text" json:"semantic_tags"`
	KeyConcepts     StringList     `gorm:"type:text" json:"key_concepts"`
	Entities        EntityList     `gorm:"type:text" json:"entities"`
	QualityScore    float64        `json:"quality_score"`
	TokenCount      int            `json:"token_count"`
	Metadata        map[string]any `gorm:"serializer:json;type:text" json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Entity 一个命名实体及其类型。
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GraphEdge 同块共现边，append-only。
type GraphEdge struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SourceEntity string         `gorm:"size:256;index" json:"source_entity"`
	SourceType   string         `gorm:"size:64" json:"source_type"`
	Relationship string         `gorm:"size:64" json:"relationship"`
	TargetEntity string         `gorm:"size:256;index" json:"target_entity"`
	TargetType   string         `gorm:"size:64" json:"target_type"`
	ChunkID      string         `gorm:"size:64;index" json:"chunk_id"`
	Confidence   float64        `json:"confidence"`
	Metadata     map[string]any `gorm:"serializer:json;type:text" json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// QueryExpansionLog 查询扩展审计记录。
type QueryExpansionLog struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OriginalQuery string     `gorm:"type:text" json:"original_query"`
	Expanded      StringList `gorm:"type:text" json:"expanded"`
	Hypothetical  string     `gorm:"type:text" json:"hypothetical"`
	SubQueries    StringList `gorm:"type:text" json:"sub_queries"`
	Intent        string     `gorm:"size:64" json:"intent"`
	Entities      StringList `gorm:"type:text" json:"entities"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RetrievalLog 单次检索调用的审计记录。
type RetrievalLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Query          string     `gorm:"type:text" json:"query"`
	StrategiesUsed StringList `gorm:"type:text" json:"strategies_used"`
	TotalRetrieved int        `json:"total_retrieved"`
	Reranked       bool       `json:"reranked"`
	MultiHop       bool       `json:"multi_hop"`
	LatencyMS      int64      `json:"latency_ms"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SelfEvaluation 每次回答一条，记录检索决策与幻觉核查结果。
type SelfEvaluation struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Query                string    `gorm:"type:text" json:"query"`
	RetrievalDecision    string    `gorm:"size:32" json:"retrieval_decision"`
	ChunksUsed           int       `json:"chunks_used"`
	CorrectiveApplied    bool      `json:"corrective_applied"`
	HallucinationFlag    bool      `json:"hallucination_flag"`
	HallucinationDetails string    `gorm:"type:text" json:"hallucination_details"`
	Confidence           float64   `json:"confidence"`
	FinalResponse        string    `gorm:"type:text" json:"final_response"`
	CreatedAt            time.Time `json:"created_at"`
}

// Citation 回答中实际引用到的块。
type Citation struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ChunkID         string    `gorm:"size:64;index" json:"chunk_id"`
	SourceFile      string    `gorm:"size:512" json:"source_file"`
	CitationText    string    `gorm:"size:512" json:"citation_text"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}
