package model

// Bucket 是粗粒度的相关度分档。
type Bucket string

const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// QueryResult 是生成 SQL 的执行结果。
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Records 将结果转为按列名索引的行，用于拼装回答提示词。
func (r *QueryResult) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// SourceExcerpt 是回答引用的原文片段。
type SourceExcerpt struct {
	Segment   int     `json:"segment"`
	Label     string  `json:"label"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Relevance string  `json:"relevance"`
	Bucket    Bucket  `json:"bucket"`
}

// Answer 是一次问答的结构化结果。
type Answer struct {
	Answer      string          `json:"answer"`
	SQLQuery    string          `json:"sql_query,omitempty"`
	QueryResult *QueryResult    `json:"query_result,omitempty"`
	Sources     []SourceExcerpt `json:"sources,omitempty"`
}

// SearchHit 是关键词检索的单条结果。
type SearchHit struct {
	Segment int     `json:"segment"`
	Label   string  `json:"label"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
