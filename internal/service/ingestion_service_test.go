package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/pipeline"
	"insight-qa-go/pkg/youtube"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	transcript *youtube.Transcript
	err        error
}

func (f fakeFetcher) Fetch(context.Context, string) (*youtube.Transcript, error) {
	return f.transcript, f.err
}

// clearingFetcher 在抓取字幕期间清除会话。
type clearingFetcher struct {
	clear      func()
	transcript *youtube.Transcript
}

func (f clearingFetcher) Fetch(context.Context, string) (*youtube.Transcript, error) {
	f.clear()
	return f.transcript, nil
}

func newTestProcessor(text string, yt youtube.Fetcher) *pipeline.Processor {
	return pipeline.NewProcessor(fakeExtractor{text: text}, letterEmbedder{}, yt,
		config.UploadConfig{
			MaxFileBytes:       1 << 20,
			DatasetExtensions:  []string{".csv", ".xlsx", ".json"},
			DocumentExtensions: []string{".pdf", ".ppt", ".pptx", ".docx", ".txt"},
		},
		config.DatasetConfig{PreviewRows: 5, QueryTimeoutSeconds: 5, MaxResultRows: 100},
		config.RetrievalConfig{ChunkSize: 100, ChunkOverlap: 20, EmbedBatchSize: 4, EmbedConcurrency: 2},
	)
}

func TestUploadDatasetsReportsRowsAndPublishesEvent(t *testing.T) {
	store := newTestStore(t)
	archive := &fakeArchive{}
	events := &fakePublisher{}
	svc := NewIngestionService(store, newTestProcessor("", nil), 5, archive, nil, events)

	summaries, err := svc.UploadDatasets(context.Background(), "s1", []pipeline.File{
		{Name: "sales.csv", Data: []byte("a,b\n1,2\n3,4\n5,6\n")},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "sales", summaries[0].TableName)
	assert.Equal(t, 3, summaries[0].Rows)
	assert.Equal(t, 2, summaries[0].Columns)
	assert.Equal(t, model.SlotReady, store.State("s1", model.ModalityDataset))

	require.Len(t, events.events, 1)
	assert.Equal(t, model.IngestionStatusReady, events.events[0].Status)
	assert.Equal(t, 3, events.events[0].Rows)
	assert.NotEmpty(t, events.events[0].EventID)
	assert.Equal(t, []string{"s1/dataset/sales.csv"}, archive.puts)
}

func TestUploadDatasetsReplacesPreviousArtifact(t *testing.T) {
	store := newTestStore(t)
	svc := NewIngestionService(store, newTestProcessor("", nil), 5, nil, nil, nil)

	_, err := svc.UploadDatasets(context.Background(), "s1", []pipeline.File{{Name: "a.csv", Data: []byte("x\n1\n")}})
	require.NoError(t, err)
	_, err = svc.UploadDatasets(context.Background(), "s1", []pipeline.File{{Name: "b.csv", Data: []byte("y\n1\n2\n")}})
	require.NoError(t, err)

	art, err := store.Get("s1", model.ModalityDataset)
	require.NoError(t, err)
	tab := art.(*model.TabularArtifact)
	require.Len(t, tab.Tables, 1)
	assert.Equal(t, "b", tab.Tables[0].Name)
}

func TestUploadDocumentWithoutTextIsParseError(t *testing.T) {
	store := newTestStore(t)
	events := &fakePublisher{}
	svc := NewIngestionService(store, newTestProcessor("   ", nil), 5, nil, nil, events)

	_, err := svc.UploadDocument(context.Background(), "s1", pipeline.File{Name: "empty.pdf", Data: []byte("%PDF")})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindParse))
	assert.Equal(t, model.SlotEmpty, store.State("s1", model.ModalityDocument))

	require.Len(t, events.events, 1)
	assert.Equal(t, model.IngestionStatusFailed, events.events[0].Status)
	assert.Equal(t, string(apperr.KindParse), events.events[0].ErrorKind)
}

func TestUploadDocumentBuildsIndexAndMirrors(t *testing.T) {
	store := newTestStore(t)
	mirror := &fakeMirror{}
	svc := NewIngestionService(store, newTestProcessor("Go is a language. Channels connect goroutines.", nil), 5, nil, mirror, nil)

	meta, err := svc.UploadDocument(context.Background(), "s1", pipeline.File{Name: "notes.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "notes.pdf", meta.Filename)
	assert.Positive(t, meta.ChunkCount)
	assert.Equal(t, 1, mirror.replaced)
	assert.Equal(t, model.SlotReady, store.State("s1", model.ModalityDocument))
}

func TestAnalyzeVideoValidation(t *testing.T) {
	svc := NewIngestionService(newTestStore(t), newTestProcessor("", nil), 5, nil, nil, nil)

	_, err := svc.AnalyzeVideo(context.Background(), "s1", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.AnalyzeVideo(context.Background(), "s1", "https://example.com/not-a-video")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAnalyzeVideoTranscriptDisabledLeavesSlotEmpty(t *testing.T) {
	store := newTestStore(t)
	yt := fakeFetcher{err: youtube.ErrTranscriptUnavailable}
	svc := NewIngestionService(store, newTestProcessor("", yt), 5, nil, nil, nil)

	_, err := svc.AnalyzeVideo(context.Background(), "s1", "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindParse))
	assert.Equal(t, model.SlotEmpty, store.State("s1", model.ModalityVideo))
}

func TestAnalyzeVideoArchivesTranscript(t *testing.T) {
	store := newTestStore(t)
	archive := &fakeArchive{}
	yt := fakeFetcher{transcript: &youtube.Transcript{
		VideoID:  "dQw4w9WgXcQ",
		Language: "en",
		Segments: []youtube.Segment{{Text: "never gonna give you up", Start: 0, Duration: 3}, {Text: "never gonna let you down", Start: 3, Duration: 3}},
	}}
	svc := NewIngestionService(store, newTestProcessor("", yt), 5, archive, nil, nil)

	summary, err := svc.AnalyzeVideo(context.Background(), "s1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", summary.VideoID)
	assert.Equal(t, "en", summary.Language)
	assert.Positive(t, summary.Chunks)
	assert.Equal(t, []string{"s1/video/dQw4w9WgXcQ.json"}, archive.puts)
}

func TestPublishFailureDoesNotFailIngestion(t *testing.T) {
	store := newTestStore(t)
	events := &fakePublisher{err: errors.New("kafka down")}
	svc := NewIngestionService(store, newTestProcessor("", nil), 5, nil, nil, events)

	_, err := svc.UploadDatasets(context.Background(), "s1", []pipeline.File{{Name: "a.csv", Data: []byte("x\n1\n")}})
	require.NoError(t, err)
	assert.Len(t, events.events, 1)
}

func TestAnalyzeVideoClearedMidIngestIsConflict(t *testing.T) {
	store := newTestStore(t)
	archive := &fakeArchive{}
	mirror := &fakeMirror{}
	yt := clearingFetcher{
		clear: func() { store.Clear("s1") },
		transcript: &youtube.Transcript{
			VideoID:  "dQw4w9WgXcQ",
			Language: "en",
			Segments: []youtube.Segment{{Text: "never gonna give you up", Start: 0, Duration: 3}},
		},
	}
	svc := NewIngestionService(store, newTestProcessor("", yt), 5, archive, mirror, nil)

	_, err := svc.AnalyzeVideo(context.Background(), "s1", "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
	assert.Equal(t, model.SlotEmpty, store.State("s1", model.ModalityVideo))
	assert.Empty(t, archive.puts)
	assert.Zero(t, mirror.replaced)
}
