package service

import (
	"context"
	"strings"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/dataset"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/retrieval"
	"insight-qa-go/pkg/log"
)

const (
	markerSQL      = "text_to_sql"
	markerDirect   = "answer_without_sql"
	markerFinal    = "final_answer"
	invalidLLMText = "LLM did not return a valid response."
)

// RankedHit 是一条带相关度分档的检索结果。
type RankedHit struct {
	Chunk  *model.Chunk
	Score  float64
	Bucket model.Bucket
}

// RoutedQuery 是问题在产物上路由后的中间结果，交给 AnswerComposer 生成回答。
type RoutedQuery struct {
	Question string
	Modality model.Modality

	// 表格路径
	SQLQuery     string
	Result       *model.QueryResult
	DirectAnswer string

	// 检索路径
	Hits []RankedHit
}

// QueryRouter 根据产物的具体类型选择 SQL 或语义检索路径。
type QueryRouter struct {
	gen          Generator
	embedder     Embedder
	retrievalCfg config.RetrievalConfig
	sampleRows   int
}

// NewQueryRouter 创建一个新的 QueryRouter 实例。
func NewQueryRouter(gen Generator, embedder Embedder, retrievalCfg config.RetrievalConfig, datasetCfg config.DatasetConfig) *QueryRouter {
	sample := datasetCfg.SampleRows
	if sample <= 0 {
		sample = 3
	}
	return &QueryRouter{gen: gen, embedder: embedder, retrievalCfg: retrievalCfg, sampleRows: sample}
}

// Route 在产物上执行问题。生成的 SQL 执行失败时返回携带原语句的错误，不会重试。
func (r *QueryRouter) Route(ctx context.Context, question string, artifact model.Artifact) (*RoutedQuery, error) {
	switch a := artifact.(type) {
	case *model.TabularArtifact:
		return r.routeTabular(ctx, question, a)
	case *model.IndexedArtifact:
		return r.routeIndexed(ctx, question, a)
	case nil:
		return nil, apperr.NotFound("no active artifact")
	}
	return nil, apperr.Validation("unsupported artifact type", nil)
}

func (r *QueryRouter) routeTabular(ctx context.Context, question string, a *model.TabularArtifact) (*RoutedQuery, error) {
	prompt := render(datasetSQLPrompt,
		"question", question,
		"dataset_info", dataset.DescribeJSON(a.Tables, r.sampleRows),
	)
	resp, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("answer generation failed", err)
	}

	rq := &RoutedQuery{Question: question, Modality: model.ModalityDataset}
	if sql, ok := afterMarker(resp, markerSQL); ok {
		rq.SQLQuery = dataset.CleanSQL(sql)
		log.Infof("[QueryRouter] 生成 SQL: %s", rq.SQLQuery)
		result, err := a.Engine.Query(ctx, rq.SQLQuery)
		if err != nil {
			return nil, err
		}
		rq.Result = result
		return rq, nil
	}
	if direct, ok := afterMarker(resp, markerDirect); ok {
		rq.DirectAnswer = direct
		return rq, nil
	}
	log.Warnf("[QueryRouter] 模型输出缺少约定标记: %.200s", resp)
	return nil, apperr.External(invalidLLMText, nil)
}

func (r *QueryRouter) routeIndexed(ctx context.Context, question string, a *model.IndexedArtifact) (*RoutedQuery, error) {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	k := r.topK(a.Kind)
	hits := a.Index.TopK(vec, k)
	rq := &RoutedQuery{Question: question, Modality: a.Kind, Hits: make([]RankedHit, 0, len(hits))}
	for _, h := range hits {
		rq.Hits = append(rq.Hits, RankedHit{
			Chunk:  h.Chunk,
			Score:  h.Score,
			Bucket: retrieval.Bucket(h.Score, r.retrievalCfg.HighThreshold, r.retrievalCfg.MediumThreshold),
		})
	}
	log.Infof("[QueryRouter] 检索完成, Modality: %s, K: %d, 命中: %d", a.Kind, k, len(rq.Hits))
	return rq, nil
}

func (r *QueryRouter) topK(m model.Modality) int {
	k := r.retrievalCfg.DocumentTopK
	if k <= 0 {
		k = 3
	}
	if m == model.ModalityVideo {
		k = r.retrievalCfg.VideoTopK
		if k <= 0 {
			k = 4
		}
	}
	if r.retrievalCfg.MaxTopK > 0 {
		k = min(k, r.retrievalCfg.MaxTopK)
	}
	return k
}

// afterMarker 返回标记之后、第一个冒号之后的内容。
func afterMarker(resp, marker string) (string, bool) {
	idx := strings.Index(resp, marker)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimLeft(resp[idx+len(marker):], " \t*")
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest), true
}
