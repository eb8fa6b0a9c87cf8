package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotReadOnly 表示语句不是只读查询。
	ErrNotReadOnly = errors.New("only SELECT queries are allowed")
	// ErrMultipleStatements 表示输入包含多条语句。
	ErrMultipleStatements = errors.New("only a single statement is allowed")
	// ErrEmptyQuery 表示清理后语句为空。
	ErrEmptyQuery = errors.New("empty query")
)

// 只读查询中不允许出现的关键字（字符串字面量与带引号的标识符除外）
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "CREATE": true,
	"ALTER": true, "ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true,
	"REINDEX": true, "TRUNCATE": true, "ANALYZE": true, "SAVEPOINT": true,
	"RELEASE": true, "ROLLBACK": true, "COMMIT": true, "BEGIN": true, "LOAD_EXTENSION": true,
}

var (
	fenceRe = regexp.MustCompile("(?i)```(?:sql)?")
	wordRe  = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// CleanSQL 去掉模型输出中的代码块标记与末尾分号。
func CleanSQL(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// CheckReadOnly 校验语句为单条 SELECT/WITH 查询且不含写入或管理类关键字。
func CheckReadOnly(query string) error {
	code := stripLiterals(query)
	code = strings.TrimSpace(code)
	for strings.HasSuffix(code, ";") {
		code = strings.TrimSpace(strings.TrimSuffix(code, ";"))
	}
	if code == "" {
		return ErrEmptyQuery
	}
	if strings.Contains(code, ";") {
		return ErrMultipleStatements
	}

	words := wordRe.FindAllString(code, -1)
	if len(words) == 0 {
		return ErrNotReadOnly
	}
	first := strings.ToUpper(words[0])
	if first != "SELECT" && first != "WITH" {
		return ErrNotReadOnly
	}
	for i, w := range words {
		kw := strings.ToUpper(w)
		if forbiddenKeywords[kw] {
			return fmt.Errorf("%w: %s is not permitted", ErrNotReadOnly, kw)
		}
		// replace() 是合法的字符串函数，REPLACE INTO 不是
		if kw == "REPLACE" && i+1 < len(words) && strings.EqualFold(words[i+1], "INTO") {
			return fmt.Errorf("%w: REPLACE INTO is not permitted", ErrNotReadOnly)
		}
	}
	return nil
}

// stripLiterals 用空格替换字符串字面量、带引号的标识符与注释，仅保留语句结构。
func stripLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	rs := []rune(query)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closeQuote(rs, i, c)
			b.WriteString(" q ")
			i = end
		case c == '[':
			end := i + 1
			for end < len(rs) && rs[end] != ']' {
				end++
			}
			b.WriteString(" q ")
			i = end
		case c == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i+1 < len(rs) && !(rs[i] == '*' && rs[i+1] == '/') {
				i++
			}
			i++
			b.WriteByte(' ')
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// closeQuote 返回与 rs[start] 配对的引号位置，成对的引号视为转义。
func closeQuote(rs []rune, start int, q rune) int {
	i := start + 1
	for i < len(rs) {
		if rs[i] == q {
			if i+1 < len(rs) && rs[i+1] == q {
				i += 2
				continue
			}
			return i
		}
		i++
	}
	return len(rs) - 1
}
