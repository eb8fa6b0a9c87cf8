package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/dataset"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/pipeline"
	"insight-qa-go/internal/session"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/metrics"
	"insight-qa-go/pkg/tasks"
	"insight-qa-go/pkg/youtube"

	"github.com/google/uuid"
)

// Archiver 归档原始上传内容。
type Archiver interface {
	Put(ctx context.Context, sessionID, modality, name string, data []byte) error
	RemoveSession(ctx context.Context, sessionID string) error
}

// ChunkMirror 把索引片段镜像到外部检索系统。
type ChunkMirror interface {
	Replace(ctx context.Context, sessionID string, art *model.IndexedArtifact) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// EventPublisher 发布导入事件。
type EventPublisher interface {
	Publish(ctx context.Context, event tasks.IngestionEvent) error
}

// DatasetSummary 是单个数据文件的导入结果。
type DatasetSummary struct {
	Filename  string          `json:"filename"`
	TableName string          `json:"table_name"`
	Rows      int             `json:"rows"`
	Columns   int             `json:"columns"`
	Preview   dataset.Preview `json:"preview"`
}

// VideoSummary 是视频字幕的导入结果。
type VideoSummary struct {
	VideoID  string                 `json:"video_id"`
	Chunks   int                    `json:"chunks"`
	Language string                 `json:"language"`
	Metadata model.ArtifactMetadata `json:"metadata"`
}

// IngestionService 定义了上传与导入的业务接口。
type IngestionService interface {
	UploadDatasets(ctx context.Context, sessionID string, files []pipeline.File) ([]DatasetSummary, error)
	UploadDocument(ctx context.Context, sessionID string, file pipeline.File) (*model.ArtifactMetadata, error)
	AnalyzeVideo(ctx context.Context, sessionID, videoURL string) (*VideoSummary, error)
}

type ingestionService struct {
	store       *session.Store
	processor   *pipeline.Processor
	previewRows int

	// 以下依赖均为可选，nil 表示未启用
	archive Archiver
	mirror  ChunkMirror
	events  EventPublisher
}

// NewIngestionService 创建一个新的 IngestionService 实例。
func NewIngestionService(
	store *session.Store,
	processor *pipeline.Processor,
	previewRows int,
	archive Archiver,
	mirror ChunkMirror,
	events EventPublisher,
) IngestionService {
	if previewRows <= 0 {
		previewRows = 5
	}
	return &ingestionService{
		store:       store,
		processor:   processor,
		previewRows: previewRows,
		archive:     archive,
		mirror:      mirror,
		events:      events,
	}
}

// ingest 在会话槽位上执行导入，导入期间被清除时返回冲突错误。
func (s *ingestionService) ingest(ctx context.Context, sessionID string, m model.Modality, build session.BuildFunc) (model.Artifact, error) {
	artifact, err := s.store.Ingest(ctx, sessionID, m, build)
	if errors.Is(err, session.ErrCleared) {
		return nil, apperr.Validation("the session was cleared while the upload was being processed", apperr.ErrBusy)
	}
	return artifact, err
}

// UploadDatasets 导入一组表格文件，替换会话中的表格产物。
func (s *ingestionService) UploadDatasets(ctx context.Context, sessionID string, files []pipeline.File) ([]DatasetSummary, error) {
	if err := s.processor.CheckDatasetFiles(files); err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	log.Infof("[Ingestion] 开始导入数据集, SessionID: %s, Files: %v", sessionID, names)

	start := time.Now()
	artifact, err := s.ingest(ctx, sessionID, model.ModalityDataset, func(ctx context.Context) (model.Artifact, error) {
		a, err := s.processor.IngestDataset(ctx, files)
		if err != nil {
			return nil, err
		}
		return a, nil
	})
	event := s.newEvent(sessionID, model.ModalityDataset, strings.Join(names, ", "), start, err)
	if err != nil {
		s.finish(ctx, event)
		return nil, err
	}

	tab := artifact.(*model.TabularArtifact)
	summaries := make([]DatasetSummary, 0, len(tab.Tables))
	for _, t := range tab.Tables {
		summaries = append(summaries, DatasetSummary{
			Filename:  t.SourceFile,
			TableName: t.Name,
			Rows:      t.RowCount(),
			Columns:   t.ColumnCount(),
			Preview:   dataset.PreviewOf(t, s.previewRows),
		})
		event.Rows += t.RowCount()
		event.Columns += t.ColumnCount()
	}
	s.finish(ctx, event)

	for _, f := range files {
		s.archiveFile(ctx, sessionID, model.ModalityDataset, f.Name, f.Data)
	}
	log.Infof("[Ingestion] 数据集导入完成, SessionID: %s, Tables: %d", sessionID, len(summaries))
	return summaries, nil
}

// UploadDocument 导入一个文档，替换会话中的文档索引。
func (s *ingestionService) UploadDocument(ctx context.Context, sessionID string, file pipeline.File) (*model.ArtifactMetadata, error) {
	if err := s.processor.CheckDocument(file); err != nil {
		return nil, err
	}
	log.Infof("[Ingestion] 开始导入文档, SessionID: %s, File: %s", sessionID, file.Name)

	start := time.Now()
	artifact, err := s.ingest(ctx, sessionID, model.ModalityDocument, func(ctx context.Context) (model.Artifact, error) {
		a, err := s.processor.IngestDocument(ctx, s.store.IndexDir(sessionID), file)
		if err != nil {
			return nil, err
		}
		return a, nil
	})
	event := s.newEvent(sessionID, model.ModalityDocument, file.Name, start, err)
	if err != nil {
		s.finish(ctx, event)
		return nil, err
	}

	idx := artifact.(*model.IndexedArtifact)
	event.ChunkCount = len(idx.Chunks)
	s.finish(ctx, event)

	s.archiveFile(ctx, sessionID, model.ModalityDocument, file.Name, file.Data)
	s.mirrorChunks(ctx, sessionID, idx)
	meta := idx.Metadata
	return &meta, nil
}

// AnalyzeVideo 解析视频链接、抓取字幕并建立索引。
func (s *ingestionService) AnalyzeVideo(ctx context.Context, sessionID, videoURL string) (*VideoSummary, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return nil, apperr.Validation("No video URL provided", nil)
	}
	videoID, err := youtube.ExtractVideoID(videoURL)
	if err != nil {
		return nil, apperr.Validation("Invalid YouTube URL", err)
	}
	log.Infof("[Ingestion] 开始导入视频字幕, SessionID: %s, VideoID: %s", sessionID, videoID)

	start := time.Now()
	artifact, err := s.ingest(ctx, sessionID, model.ModalityVideo, func(ctx context.Context) (model.Artifact, error) {
		a, err := s.processor.IngestVideo(ctx, s.store.IndexDir(sessionID), videoID)
		if err != nil {
			return nil, err
		}
		return a, nil
	})
	event := s.newEvent(sessionID, model.ModalityVideo, videoID, start, err)
	if err != nil {
		s.finish(ctx, event)
		return nil, err
	}

	idx := artifact.(*model.IndexedArtifact)
	event.ChunkCount = len(idx.Chunks)
	s.finish(ctx, event)

	if data, err := json.Marshal(idx.Chunks); err == nil {
		s.archiveFile(ctx, sessionID, model.ModalityVideo, videoID+".json", data)
	}
	s.mirrorChunks(ctx, sessionID, idx)
	return &VideoSummary{
		VideoID:  videoID,
		Chunks:   len(idx.Chunks),
		Language: idx.Metadata.Language,
		Metadata: idx.Metadata,
	}, nil
}

func (s *ingestionService) newEvent(sessionID string, m model.Modality, source string, start time.Time, err error) tasks.IngestionEvent {
	event := tasks.IngestionEvent{
		EventID:    uuid.NewString(),
		SessionID:  sessionID,
		Modality:   string(m),
		SourceName: source,
		Status:     model.IngestionStatusReady,
		DurationMs: time.Since(start).Milliseconds(),
		OccurredAt: time.Now(),
	}
	if err != nil {
		event.Status = model.IngestionStatusFailed
		event.ErrorKind = string(apperr.KindOf(err))
		event.ErrorMessage = err.Error()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			event.ErrorMessage = ae.Message
		}
	}
	return event
}

// finish 记录指标并发布导入事件，发布失败只记录日志。
func (s *ingestionService) finish(ctx context.Context, event tasks.IngestionEvent) {
	outcome := "success"
	if event.Status == model.IngestionStatusFailed {
		outcome = "error"
		log.Warnf("[Ingestion] 导入失败, SessionID: %s, Modality: %s, Error: %s", event.SessionID, event.Modality, event.ErrorMessage)
	}
	metrics.IngestionsTotal.WithLabelValues(event.Modality, outcome).Inc()
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warnf("[Ingestion] 发布导入事件失败, EventID: %s, Error: %v", event.EventID, err)
	}
}

func (s *ingestionService) archiveFile(ctx context.Context, sessionID string, m model.Modality, name string, data []byte) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Put(ctx, sessionID, string(m), name, data); err != nil {
		log.Warnf("[Ingestion] 归档失败, SessionID: %s, Name: %s, Error: %v", sessionID, name, err)
	}
}

func (s *ingestionService) mirrorChunks(ctx context.Context, sessionID string, art *model.IndexedArtifact) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Replace(ctx, sessionID, art); err != nil {
		log.Warnf("[Ingestion] 片段镜像失败, SessionID: %s, Error: %v", sessionID, err)
	}
}
