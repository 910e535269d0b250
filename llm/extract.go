package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first JSON object or array embedded in free-form
// completion text and unmarshals it into v. Models are asked to answer
// with JSON but routinely wrap it in prose or markdown fences; callers
// treat ok=false as "unparseable" and fall back to their stage default.
func ExtractJSON(text string, v any) (ok bool) {
	candidate := extractPayload(text)
	if candidate == "" {
		return false
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return false
	}
	return true
}

// extractPayload 截取文本中第一个配平的 JSON 对象或数组。
func extractPayload(text string) string {
	text = stripFences(text)

	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// stripFences 去掉 markdown 代码围栏。
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
