package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

func TestDefaultChunkingConfig(t *testing.T) {
	config := DefaultChunkingConfig()

	if config.ChunkSize != 1000 {
		t.Errorf("expected chunk size 1000, got %d", config.ChunkSize)
	}
	if config.Overlap != 200 {
		t.Errorf("expected overlap 200, got %d", config.Overlap)
	}
	if config.MinChunkSize != 50 {
		t.Errorf("expected min chunk size 50, got %d", config.MinChunkSize)
	}
}

func TestSplitShortDocument(t *testing.T) {
	chunker := NewChunker(DefaultChunkingConfig(), nil)

	text := "Cloud cost allocation tags let finance teams attribute spend to the owning service without guesswork."
	chunks := chunker.Split(text)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ChunkType != "content" {
		t.Errorf("single chunk should be typed content, got %s", chunks[0].ChunkType)
	}
	if chunks[0].Index != 0 || chunks[0].Total != 1 {
		t.Errorf("expected index 0 of 1, got %d of %d", chunks[0].Index, chunks[0].Total)
	}
	if chunks[0].TokenCount != (len(text)+3)/4 {
		t.Errorf("token estimate mismatch: got %d", chunks[0].TokenCount)
	}
}

func TestSplitMultiParagraphOverlap(t *testing.T) {
	chunker := NewChunker(DefaultChunkingConfig(), nil)

	p1 := strings.TrimSpace(strings.Repeat("The quarterly revenue grew steadily across all regions. ", 15))
	p2 := strings.TrimSpace(strings.Repeat("Operating costs were dominated by storage and egress fees. ", 14))
	p3 := strings.TrimSpace(strings.Repeat("Headcount remained flat while contractor spend declined. ", 14))
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := chunker.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].ChunkType != "intro" {
		t.Errorf("first chunk should be intro, got %s", chunks[0].ChunkType)
	}
	if chunks[1].ChunkType != "content" {
		t.Errorf("middle chunk should be content, got %s", chunks[1].ChunkType)
	}
	if chunks[2].ChunkType != "conclusion" {
		t.Errorf("last chunk should be conclusion, got %s", chunks[2].ChunkType)
	}

	// 第二块以上一块尾部 200 字符开头
	overlap := p1[len(p1)-200:]
	if !strings.HasPrefix(chunks[1].Content, overlap) {
		t.Error("second chunk should start with the 200-char tail of the first")
	}
	if !strings.Contains(chunks[1].Content, p2) {
		t.Error("second chunk should contain its own paragraph")
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Total != 3 {
			t.Errorf("chunk %d has total %d", i, c.Total)
		}
	}
}

func TestSplitMultibyteOverlapStaysValidUTF8(t *testing.T) {
	chunker := NewChunker(DefaultChunkingConfig(), nil)

	// 中文段落,每个字符 3 字节,重叠必须落在字符边界上
	p1 := strings.TrimSpace(strings.Repeat("分布式系统的一致性协议依赖多数派确认提交。", 20))
	p2 := strings.TrimSpace(strings.Repeat("存储引擎将写入先记录到日志再刷入数据文件。", 20))
	p3 := strings.TrimSpace(strings.Repeat("副本之间通过心跳检测故障并触发主节点选举。", 20))
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := chunker.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("chunk %d content is not valid UTF-8", i)
		}
	}

	// 重叠前缀是上一块尾部 200 个字符
	prev := []rune(chunks[0].Content)
	overlap := string(prev[len(prev)-DefaultChunkingConfig().Overlap:])
	if !strings.HasPrefix(chunks[1].Content, overlap) {
		t.Error("second chunk should start with the 200-rune tail of the first")
	}
}

func TestSplitOversizeParagraphFallsBackToSentences(t *testing.T) {
	chunker := NewChunker(ChunkingConfig{ChunkSize: 200, Overlap: 40, MinChunkSize: 50}, nil)

	// 单段超过 ChunkSize，必须在句子边界拆开而不是整段成块
	text := strings.TrimSpace(strings.Repeat("Sharding splits the keyspace so each node owns a contiguous range. ", 10))
	chunks := chunker.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected the oversize paragraph to split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > 200+40+2 {
			t.Errorf("chunk %d exceeds size plus overlap: %d chars", i, len(c.Content))
		}
	}
}

func TestSplitDropsTinyFragments(t *testing.T) {
	chunker := NewChunker(DefaultChunkingConfig(), nil)

	chunks := chunker.Split("ok")
	if len(chunks) != 0 {
		t.Errorf("fragments under the minimum size should be dropped, got %d chunks", len(chunks))
	}
}

func TestScoreQuality(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t  ", 0},
		{"short plain sentence", "A short note about nothing much at all.", 0.3},
		{"medium with digits", strings.Repeat("Revenue grew 12 percent this quarter. ", 6), 0.65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreQuality(tt.content)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ScoreQuality(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestScoreQualityBounds(t *testing.T) {
	// 全加成内容也不能越过 1.0
	rich := strings.Repeat("- item 1. See https://example.com for 42 details.\n", 20)
	got := ScoreQuality(rich)
	if got < 0 || got > 1 {
		t.Errorf("quality score out of [0,1]: %v", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{1000, 250},
	}
	for _, tt := range tests {
		got := EstimateTokens(strings.Repeat("x", tt.length))
		if got != tt.want {
			t.Errorf("EstimateTokens(len %d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

// 性质：分块确定、下标连续、尺寸下限与质量分区间恒成立。
func TestSplitProperties(t *testing.T) {
	chunker := NewChunker(DefaultChunkingConfig(), nil)

	rapid.Check(t, func(t *rapid.T) {
		paragraphs := rapid.SliceOfN(
			rapid.StringMatching(`[a-zA-Z0-9 .,!?]{0,400}`), 0, 8,
		).Draw(t, "paragraphs")
		text := strings.Join(paragraphs, "\n\n")

		first := chunker.Split(text)
		second := chunker.Split(text)

		if len(first) != len(second) {
			t.Fatalf("split is not deterministic: %d vs %d chunks", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("chunk %d differs between runs", i)
			}
		}
		for i, c := range first {
			if c.Index != i {
				t.Fatalf("chunk indices not contiguous: chunk %d has index %d", i, c.Index)
			}
			if c.Total != len(first) {
				t.Fatalf("chunk %d reports total %d, want %d", i, c.Total, len(first))
			}
			if len(strings.TrimSpace(c.Content)) < 50 {
				t.Fatalf("chunk %d shorter than minimum: %d chars", i, len(c.Content))
			}
			if c.QualityScore < 0 || c.QualityScore > 1 {
				t.Fatalf("chunk %d quality out of range: %v", i, c.QualityScore)
			}
		}
	})
}
