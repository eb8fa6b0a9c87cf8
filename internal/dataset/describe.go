package dataset

import (
	"encoding/json"
	"fmt"
	"math"

	"insight-qa-go/internal/model"
)

// Preview 是上传响应中的前几行预览。
type Preview struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// PreviewOf 返回表的前 n 行。
func PreviewOf(t *model.Table, n int) Preview {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return Preview{Columns: t.Columns, Rows: t.Rows[:n]}
}

// ColumnSummary 是单列的统计摘要。数值列给出 min/max/mean，文本列给出去重数。
type ColumnSummary struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	NonNull int      `json:"non_null"`
	Unique  *int     `json:"unique,omitempty"`
	Top     any      `json:"top,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty"`
}

// TableInfo 是提供给 SQL 生成提示词的表描述。
type TableInfo struct {
	Table      string           `json:"table"`
	RowCount   int              `json:"row_count"`
	Columns    []ColumnSummary  `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows"`
}

// Describe 汇总所有表的列、类型、统计信息与样例行。
func Describe(tables []*model.Table, sampleRows int) []TableInfo {
	infos := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		info := TableInfo{Table: t.Name, RowCount: t.RowCount()}
		for c, name := range t.Columns {
			info.Columns = append(info.Columns, summarize(name, t.Types[c], t.Rows, c))
		}
		n := min(sampleRows, len(t.Rows))
		for _, row := range t.Rows[:n] {
			rec := make(map[string]any, len(t.Columns))
			for c, name := range t.Columns {
				rec[name] = row[c]
			}
			info.SampleRows = append(info.SampleRows, rec)
		}
		infos = append(infos, info)
	}
	return infos
}

// DescribeJSON 以缩进 JSON 形式返回 Describe 的结果。
func DescribeJSON(tables []*model.Table, sampleRows int) string {
	b, err := json.MarshalIndent(Describe(tables, sampleRows), "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", Describe(tables, sampleRows))
	}
	return string(b)
}

func summarize(name, typ string, rows [][]any, col int) ColumnSummary {
	s := ColumnSummary{Name: name, Type: typ}
	if typ == TypeText {
		counts := map[string]int{}
		var top string
		for _, row := range rows {
			v, ok := row[col].(string)
			if !ok {
				continue
			}
			s.NonNull++
			counts[v]++
			if counts[v] > counts[top] || (counts[v] == counts[top] && v < top) {
				top = v
			}
		}
		unique := len(counts)
		s.Unique = &unique
		if s.NonNull > 0 {
			s.Top = top
		}
		return s
	}

	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, row := range rows {
		var f float64
		switch v := row[col].(type) {
		case int64:
			f = float64(v)
		case float64:
			f = v
		default:
			continue
		}
		s.NonNull++
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		sum += f
	}
	if s.NonNull > 0 {
		mean := math.Round(sum/float64(s.NonNull)*1e4) / 1e4
		s.Min, s.Max, s.Mean = &lo, &hi, &mean
	}
	return s
}
