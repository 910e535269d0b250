package rag

import (
	"fmt"
	"strings"
	"testing"
)

func TestExtractEntityTypes(t *testing.T) {
	extractor := NewEntityExtractor()

	content := "Contact alice@example.com or visit https://example.com/docs today. " +
		"Revenue grew 12.5% to $3,400,000 on 2024-01-31."
	entities := extractor.Extract(content)

	got := make(map[string]string, len(entities))
	for _, e := range entities {
		got[e.Name] = e.Type
	}

	want := map[string]string{
		"alice@example.com":        EntityEmail,
		"https://example.com/docs": EntityURL,
		"2024-01-31":               EntityDate,
		"$3,400,000":               EntityMoney,
		"12.5%":                    EntityPercentage,
	}
	for name, typ := range want {
		if got[name] != typ {
			t.Errorf("expected %s entity %q, got entities %v", typ, name, entities)
		}
	}
	if len(entities) != len(want) {
		t.Errorf("expected %d entities, got %d: %v", len(want), len(entities), entities)
	}
}

func TestExtractTypeOrder(t *testing.T) {
	extractor := NewEntityExtractor()

	// 百分比在文中先出现，输出仍按类型顺序排在邮箱之后
	entities := extractor.Extract("Margin hit 40% according to bob@corp.io.")

	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d: %v", len(entities), entities)
	}
	if entities[0].Type != EntityEmail {
		t.Errorf("expected email first, got %s", entities[0].Type)
	}
	if entities[1].Type != EntityPercentage {
		t.Errorf("expected percentage second, got %s", entities[1].Type)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	extractor := NewEntityExtractor()

	entities := extractor.Extract("Ping ops@corp.io. If unanswered ping ops@corp.io again.")

	if len(entities) != 1 {
		t.Errorf("expected duplicate mention collapsed to 1 entity, got %d", len(entities))
	}
}

func TestExtractMonthDates(t *testing.T) {
	extractor := NewEntityExtractor()

	entities := extractor.Extract("The audit ran from January 15, 2024 until Feb 2 2024.")

	dates := 0
	for _, e := range entities {
		if e.Type == EntityDate {
			dates++
		}
	}
	if dates != 2 {
		t.Errorf("expected 2 date entities, got %d: %v", dates, entities)
	}
}

func TestExtractCapsAtTwenty(t *testing.T) {
	extractor := NewEntityExtractor()

	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "user%d@example.com ", i)
	}
	entities := extractor.Extract(b.String())

	if len(entities) != 20 {
		t.Errorf("expected entity cap of 20, got %d", len(entities))
	}
}

func TestExtractEmptyContent(t *testing.T) {
	extractor := NewEntityExtractor()

	if got := extractor.Extract(""); len(got) != 0 {
		t.Errorf("expected no entities for empty content, got %v", got)
	}
	if got := extractor.Extract("plain prose with no structured mentions at all"); len(got) != 0 {
		t.Errorf("expected no entities for plain prose, got %v", got)
	}
}
