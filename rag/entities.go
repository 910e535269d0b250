package rag

import (
	"regexp"

	"github.com/BaSui01/knowledgeflow/store"
)

// 实体类型。
const (
	EntityEmail      = "email"
	EntityURL        = "url"
	EntityDate       = "date"
	EntityMoney      = "money"
	EntityPercentage = "percentage"
)

// maxEntitiesPerChunk 限制下游图谱扇出：n 个实体的块会产出 n·(n-1)/2 条边。
const maxEntitiesPerChunk = 20

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	// 2024-01-31 / 01/31/2024 / 31.01.2024
	numericDatePattern = regexp.MustCompile(`\b\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}\b`)
	// January 31, 2024 / Jan 31 2024 / 31 January 2024
	monthDatePattern = regexp.MustCompile(`(?i)\b(?:\d{1,2}\s+)?(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:,?\s+\d{2,4})?\b`)
	moneyPattern     = regexp.MustCompile(`[$€£¥]\s?\d[\d,]*(?:\.\d+)?|\b\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|CNY|dollars?|euros?)\b`)
	percentPattern   = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?%`)
)

// EntityExtractor 纯本地的正则实体抽取，无外部调用，结果确定。
type EntityExtractor struct{}

// NewEntityExtractor 创建实体抽取器。
func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

// Extract 抽取邮箱、URL、日期、金额、百分比实体。按类型顺序 +
// 文中出现顺序输出，同名同型去重，总数上限 20。
func (e *EntityExtractor) Extract(content string) []store.Entity {
	type matcher struct {
		pattern *regexp.Regexp
		typ     string
	}
	matchers := []matcher{
		{emailPattern, EntityEmail},
		{urlPattern, EntityURL},
		{numericDatePattern, EntityDate},
		{monthDatePattern, EntityDate},
		{moneyPattern, EntityMoney},
		{percentPattern, EntityPercentage},
	}

	seen := make(map[string]bool)
	var out []store.Entity
	for _, m := range matchers {
		for _, hit := range m.pattern.FindAllString(content, -1) {
			key := m.typ + "\x00" + hit
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, store.Entity{Name: hit, Type: m.typ})
			if len(out) >= maxEntitiesPerChunk {
				return out
			}
		}
	}
	return out
}
