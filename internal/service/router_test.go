package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRetrievalCfg = config.RetrievalConfig{
	DocumentTopK:    3,
	VideoTopK:       4,
	MaxTopK:         10,
	HighThreshold:   0.75,
	MediumThreshold: 0.5,
}

func tabularArtifact(q *fakeQuerier) *model.TabularArtifact {
	return &model.TabularArtifact{
		Tables: []*model.Table{{
			Name:       "sales",
			SourceFile: "sales.csv",
			Columns:    []string{"region", "amount"},
			Types:      []string{"TEXT", "INTEGER"},
			Rows:       [][]any{{"north", int64(10)}, {"south", int64(20)}},
		}},
		SourceFiles: []string{"sales.csv"},
		Engine:      q,
	}
}

func TestRouteTabularRunsGeneratedSQL(t *testing.T) {
	q := &fakeQuerier{result: &model.QueryResult{Columns: []string{"total"}, Rows: [][]any{{int64(30)}}, RowCount: 1}}
	gen := &fakeGenerator{responses: []string{"text_to_sql: ```sql\nSELECT SUM(amount) AS total FROM sales;\n```"}}
	r := NewQueryRouter(gen, nil, testRetrievalCfg, config.DatasetConfig{})

	rq, err := r.Route(context.Background(), "total sales?", tabularArtifact(q))
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(amount) AS total FROM sales", rq.SQLQuery)
	assert.Equal(t, []string{"SELECT SUM(amount) AS total FROM sales"}, q.queries)
	assert.Equal(t, int64(30), rq.Result.Rows[0][0])
	assert.Contains(t, gen.prompts[0], "sales")
	assert.Contains(t, gen.prompts[0], "total sales?")
}

func TestRouteTabularDirectAnswer(t *testing.T) {
	q := &fakeQuerier{}
	gen := &fakeGenerator{responses: []string{"answer_without_sql: The dataset has two columns."}}
	r := NewQueryRouter(gen, nil, testRetrievalCfg, config.DatasetConfig{})

	rq, err := r.Route(context.Background(), "what columns?", tabularArtifact(q))
	require.NoError(t, err)
	assert.Equal(t, "The dataset has two columns.", rq.DirectAnswer)
	assert.Empty(t, q.queries)
}

func TestRouteTabularWithoutMarkerIsExternalError(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I am not sure."}}
	r := NewQueryRouter(gen, nil, testRetrievalCfg, config.DatasetConfig{})

	_, err := r.Route(context.Background(), "q", tabularArtifact(&fakeQuerier{}))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindExternal))
}

func TestRouteTabularQueryFailureIsNotRetried(t *testing.T) {
	q := &fakeQuerier{err: apperr.QueryFailed("SELECT nope FROM sales", errors.New("no such column: nope"))}
	gen := &fakeGenerator{responses: []string{"text_to_sql: SELECT nope FROM sales"}}
	r := NewQueryRouter(gen, nil, testRetrievalCfg, config.DatasetConfig{})

	_, err := r.Route(context.Background(), "q", tabularArtifact(q))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrQueryFailed)
	assert.Len(t, q.queries, 1)
	assert.Equal(t, 1, gen.calls())
}

func indexedArtifact(kind model.Modality, s *fakeSearcher) *model.IndexedArtifact {
	return &model.IndexedArtifact{Kind: kind, Index: s}
}

func TestRouteIndexedUsesModalityTopKAndBuckets(t *testing.T) {
	chunks := []model.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}, {Index: 3, Text: "d"}, {Index: 4, Text: "e"}}
	s := &fakeSearcher{hits: []model.ScoredChunk{
		{Chunk: &chunks[0], Score: 0.9},
		{Chunk: &chunks[1], Score: 0.6},
		{Chunk: &chunks[2], Score: 0.2},
		{Chunk: &chunks[3], Score: 0.1},
		{Chunk: &chunks[4], Score: 0.05},
	}}
	r := NewQueryRouter(nil, fakeEmbedder{vec: []float32{1}}, testRetrievalCfg, config.DatasetConfig{})

	rq, err := r.Route(context.Background(), "q", indexedArtifact(model.ModalityDocument, s))
	require.NoError(t, err)
	assert.Equal(t, 3, s.lastK)
	require.Len(t, rq.Hits, 3)
	assert.Equal(t, model.BucketHigh, rq.Hits[0].Bucket)
	assert.Equal(t, model.BucketMedium, rq.Hits[1].Bucket)
	assert.Equal(t, model.BucketLow, rq.Hits[2].Bucket)

	_, err = r.Route(context.Background(), "q", indexedArtifact(model.ModalityVideo, s))
	require.NoError(t, err)
	assert.Equal(t, 4, s.lastK)
}

func TestRouteIndexedEmbeddingFailure(t *testing.T) {
	r := NewQueryRouter(nil, fakeEmbedder{err: apperr.External("embedding failed", errors.New("503"))}, testRetrievalCfg, config.DatasetConfig{})
	_, err := r.Route(context.Background(), "q", indexedArtifact(model.ModalityDocument, &fakeSearcher{}))
	assert.True(t, apperr.Is(err, apperr.KindExternal))
}

func TestAfterMarker(t *testing.T) {
	got, ok := afterMarker("**text_to_sql**: SELECT 1", markerSQL)
	assert.True(t, ok)
	assert.Equal(t, "SELECT 1", got)

	_, ok = afterMarker("nothing here", markerFinal)
	assert.False(t, ok)
}

func TestComposeTabularFinalAnswer(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"final_answer: Total sales are 30."}}
	c := NewAnswerComposer(gen)
	rq := &RoutedQuery{
		Question: "total?",
		Modality: model.ModalityDataset,
		SQLQuery: "SELECT 30 AS total",
		Result:   &model.QueryResult{Columns: []string{"total"}, Rows: [][]any{{int64(30)}}},
	}

	ans, err := c.Compose(context.Background(), rq)
	require.NoError(t, err)
	assert.Equal(t, "Total sales are 30.", ans.Answer)
	assert.Equal(t, "SELECT 30 AS total", ans.SQLQuery)
	assert.Contains(t, gen.prompts[0], `[{"total":30}]`)
}

func TestComposeTabularFallsBackToRawText(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"  Sales total 30.  "}}
	ans, err := NewAnswerComposer(gen).Compose(context.Background(), &RoutedQuery{
		Modality: model.ModalityDataset,
		Result:   &model.QueryResult{},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sales total 30.", ans.Answer)
}

func TestComposeTabularDirectAnswerSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	ans, err := NewAnswerComposer(gen).Compose(context.Background(), &RoutedQuery{
		Modality:     model.ModalityDataset,
		DirectAnswer: "Two tables.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Two tables.", ans.Answer)
	assert.Equal(t, 0, gen.calls())
}

func TestComposeVideoSources(t *testing.T) {
	long := strings.Repeat("x", 250)
	chunk := model.Chunk{Label: "00:01:05", Text: long, Start: 65}
	gen := &fakeGenerator{responses: []string{"It is about x."}}
	ans, err := NewAnswerComposer(gen).Compose(context.Background(), &RoutedQuery{
		Question: "what?",
		Modality: model.ModalityVideo,
		Hits:     []RankedHit{{Chunk: &chunk, Score: 0.8123, Bucket: model.BucketHigh}},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is about x.", ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, 1, ans.Sources[0].Segment)
	assert.Equal(t, "81.2%", ans.Sources[0].Relevance)
	assert.Equal(t, strings.Repeat("x", 200)+"...", ans.Sources[0].Content)
	assert.Contains(t, gen.prompts[0], "[01:05] ")
}
