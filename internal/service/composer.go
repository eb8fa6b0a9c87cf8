package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/youtube"
)

const (
	documentExcerptRunes = 300
	videoExcerptRunes    = 200
)

// AnswerComposer 把路由结果与问题组合为最终回答。生成失败不重试。
type AnswerComposer struct {
	gen Generator
}

// NewAnswerComposer 创建一个新的 AnswerComposer 实例。
func NewAnswerComposer(gen Generator) *AnswerComposer {
	return &AnswerComposer{gen: gen}
}

// Compose 生成回答。
func (c *AnswerComposer) Compose(ctx context.Context, rq *RoutedQuery) (*model.Answer, error) {
	if rq.Modality == model.ModalityDataset {
		return c.composeTabular(ctx, rq)
	}
	return c.composeIndexed(ctx, rq)
}

func (c *AnswerComposer) composeTabular(ctx context.Context, rq *RoutedQuery) (*model.Answer, error) {
	if rq.Result == nil {
		return &model.Answer{Answer: rq.DirectAnswer}, nil
	}
	records, err := json.Marshal(rq.Result.Records())
	if err != nil {
		return nil, fmt.Errorf("序列化查询结果失败: %w", err)
	}
	resp, err := c.gen.Generate(ctx, render(datasetAnswerPrompt,
		"question", rq.Question,
		"query_result", string(records),
	))
	if err != nil {
		return nil, apperr.External("answer generation failed", err)
	}
	answer, ok := afterMarker(resp, markerFinal)
	if !ok {
		answer = strings.TrimSpace(resp)
	}
	return &model.Answer{Answer: answer, SQLQuery: rq.SQLQuery, QueryResult: rq.Result}, nil
}

func (c *AnswerComposer) composeIndexed(ctx context.Context, rq *RoutedQuery) (*model.Answer, error) {
	var prompt string
	if rq.Modality == model.ModalityVideo {
		prompt = render(videoQAPrompt, "transcript", buildContext(rq), "question", rq.Question)
	} else {
		prompt = render(documentQAPrompt, "context", buildContext(rq), "question", rq.Question)
	}
	resp, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, apperr.External("answer generation failed", err)
	}
	return &model.Answer{Answer: strings.TrimSpace(resp), Sources: sourcesOf(rq)}, nil
}

// buildContext 拼接检索到的片段。视频片段以 [mm:ss] 开头。
func buildContext(rq *RoutedQuery) string {
	parts := make([]string, 0, len(rq.Hits))
	for _, h := range rq.Hits {
		if rq.Modality == model.ModalityVideo {
			parts = append(parts, fmt.Sprintf("[%s] %s", youtube.Timestamp(h.Chunk.Start), h.Chunk.Text))
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", h.Chunk.Label, h.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

func sourcesOf(rq *RoutedQuery) []model.SourceExcerpt {
	limit := documentExcerptRunes
	if rq.Modality == model.ModalityVideo {
		limit = videoExcerptRunes
	}
	out := make([]model.SourceExcerpt, 0, len(rq.Hits))
	for i, h := range rq.Hits {
		out = append(out, model.SourceExcerpt{
			Segment:   i + 1,
			Label:     h.Chunk.Label,
			Content:   truncate(h.Chunk.Text, limit),
			Score:     h.Score,
			Relevance: fmt.Sprintf("%.1f%%", h.Score*100),
			Bucket:    h.Bucket,
		})
	}
	return out
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
