package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/repository"
	"insight-qa-go/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	store := session.NewStore(time.Hour, time.Hour, t.TempDir())
	t.Cleanup(store.Close)
	return store
}

func newTestQAService(store *session.Store, gen *fakeGenerator, emb Embedder, history *fakeConversationRepo) QAService {
	router := NewQueryRouter(gen, emb, testRetrievalCfg, config.DatasetConfig{})
	var repo repository.ConversationRepository
	if history != nil {
		repo = history
	}
	return NewQAService(store, router, NewAnswerComposer(gen), repo, 10)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	svc := newTestQAService(newTestStore(t), &fakeGenerator{}, nil, nil)
	_, err := svc.Ask(context.Background(), "s1", model.ModalityDataset, "   ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAskWithoutArtifactIsNotFound(t *testing.T) {
	svc := newTestQAService(newTestStore(t), &fakeGenerator{}, nil, nil)

	cases := map[model.Modality]string{
		model.ModalityDataset:  "No datasets uploaded",
		model.ModalityDocument: "Please upload a document first",
		model.ModalityVideo:    "Please analyze a video first",
	}
	for m, msg := range cases {
		_, err := svc.Ask(context.Background(), "s1", m, "anything?")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		var ae *apperr.Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, msg, ae.Message)
	}
}

func TestAskDatasetEndToEndRecordsHistory(t *testing.T) {
	store := newTestStore(t)
	q := &fakeQuerier{result: &model.QueryResult{Columns: []string{"n"}, Rows: [][]any{{int64(3)}}, RowCount: 1}}
	store.Set("s1", model.ModalityDataset, tabularArtifact(q))
	gen := &fakeGenerator{responses: []string{
		"text_to_sql: SELECT COUNT(*) AS n FROM sales",
		"final_answer: There are 3 rows.",
		"text_to_sql: SELECT COUNT(*) AS n FROM sales",
		"final_answer: Still 3 rows.",
	}}
	history := newFakeConversationRepo()
	svc := newTestQAService(store, gen, nil, history)

	ans, err := svc.Ask(context.Background(), "s1", model.ModalityDataset, "how many rows?")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 rows.", ans.Answer)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM sales", ans.SQLQuery)

	// 第二个问题复用同一个产物
	ans, err = svc.Ask(context.Background(), "s1", model.ModalityDataset, "and now?")
	require.NoError(t, err)
	assert.Equal(t, "Still 3 rows.", ans.Answer)
	assert.Len(t, q.queries, 2)

	msgs, _ := history.GetHistory(context.Background(), "s1", model.ModalityDataset)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM sales", msgs[1].SQLQuery)
}

func TestAskKeepsArtifactAliveWhenReplacedMidQuestion(t *testing.T) {
	store := newTestStore(t)
	q := &fakeQuerier{result: &model.QueryResult{Columns: []string{"n"}, Rows: [][]any{{int64(3)}}, RowCount: 1}}
	q.onQuery = func() {
		store.Set("s1", model.ModalityDataset, tabularArtifact(&fakeQuerier{}))
	}
	store.Set("s1", model.ModalityDataset, tabularArtifact(q))
	gen := &fakeGenerator{responses: []string{
		"text_to_sql: SELECT COUNT(*) AS n FROM sales",
		"final_answer: There are 3 rows.",
	}}
	svc := newTestQAService(store, gen, nil, nil)

	ans, err := svc.Ask(context.Background(), "s1", model.ModalityDataset, "how many rows?")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 rows.", ans.Answer)
	// 问答结束后旧产物才被释放
	assert.True(t, q.closed)
}

func TestAskHistoryFailureDoesNotFailAnswer(t *testing.T) {
	store := newTestStore(t)
	store.Set("s1", model.ModalityDataset, tabularArtifact(&fakeQuerier{}))
	history := newFakeConversationRepo()
	history.failRead = true
	svc := newTestQAService(store, &fakeGenerator{responses: []string{"answer_without_sql: hi"}}, nil, history)

	ans, err := svc.Ask(context.Background(), "s1", model.ModalityDataset, "hello?")
	require.NoError(t, err)
	assert.Equal(t, "hi", ans.Answer)
}

func TestAskDocumentReturnsSources(t *testing.T) {
	store := newTestStore(t)
	chunk := model.Chunk{Label: "Segment 1", Text: "Go has goroutines."}
	store.Set("s1", model.ModalityDocument, indexedArtifact(model.ModalityDocument, &fakeSearcher{
		hits: []model.ScoredChunk{{Chunk: &chunk, Score: 0.9}},
	}))
	gen := &fakeGenerator{responses: []string{"Goroutines."}}
	svc := newTestQAService(store, gen, fakeEmbedder{vec: []float32{1}}, nil)

	ans, err := svc.Ask(context.Background(), "s1", model.ModalityDocument, "what does Go have?")
	require.NoError(t, err)
	assert.Equal(t, "Goroutines.", ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, model.BucketHigh, ans.Sources[0].Bucket)
	assert.Contains(t, gen.prompts[0], "Go has goroutines.")
}

func TestSearchKeyword(t *testing.T) {
	store := newTestStore(t)
	chunk := model.Chunk{Label: "Segment 2", Text: "bleve keyword search"}
	var gotK int
	store.Set("s1", model.ModalityVideo, indexedArtifact(model.ModalityVideo, &fakeSearcher{
		keyword: func(_ string, k int) ([]model.ScoredChunk, error) {
			gotK = k
			return []model.ScoredChunk{{Chunk: &chunk, Score: 1.5}}, nil
		},
	}))
	svc := newTestQAService(store, &fakeGenerator{}, nil, nil)

	hits, err := svc.Search(context.Background(), "s1", model.ModalityVideo, "keyword", 50)
	require.NoError(t, err)
	assert.Equal(t, 10, gotK)
	require.Len(t, hits, 1)
	assert.Equal(t, "Segment 2", hits[0].Label)

	_, err = svc.Search(context.Background(), "s1", model.ModalityDataset, "keyword", 5)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Search(context.Background(), "s1", model.ModalityDocument, "keyword", 5)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAskWhileIngestingIsBusy(t *testing.T) {
	store := newTestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.Ingest(context.Background(), "s1", model.ModalityDataset, func(context.Context) (model.Artifact, error) {
			close(started)
			<-release
			return tabularArtifact(&fakeQuerier{}), nil
		})
	}()
	<-started

	svc := newTestQAService(store, &fakeGenerator{}, nil, nil)
	_, err := svc.Ask(context.Background(), "s1", model.ModalityDataset, "q?")
	assert.ErrorIs(t, err, apperr.ErrBusy)

	close(release)
	<-done
}
