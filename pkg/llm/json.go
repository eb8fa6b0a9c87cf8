package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON 表示模型输出中找不到 JSON 对象。
var ErrNoJSON = errors.New("no JSON object in model output")

var (
	openFenceRe  = regexp.MustCompile("^```[A-Za-z]*\\s*\n")
	closeFenceRe = regexp.MustCompile("\n?```\\s*$")
)

// CleanJSON 去掉代码块标记并截取最外层的 {...}。找不到对象时返回清理后的原文。
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = openFenceRe.ReplaceAllString(s, "")
		s = closeFenceRe.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// DecodeJSON 清理模型输出并解析到 out。
func DecodeJSON(raw string, out any) error {
	cleaned := CleanJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(cleaned), out)
}
