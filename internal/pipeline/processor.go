// Package pipeline 定义了上传内容的导入流程：解析、切块、向量化与建索引。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/config"
	"insight-qa-go/internal/dataset"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/retrieval"
	"insight-qa-go/pkg/embedding"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/metrics"
	"insight-qa-go/pkg/youtube"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoText 表示没有提取到任何文本。
var ErrNoText = errors.New("no text could be extracted")

// TextExtractor 从二进制文档中提取纯文本，由 Tika 客户端实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// File 是一个已读入内存的上传文件。
type File struct {
	Name string
	Data []byte
}

// Processor 封装了导入流程的所有依赖和逻辑。
type Processor struct {
	extractor    TextExtractor
	embedder     embedding.Client
	transcripts  youtube.Fetcher
	uploadCfg    config.UploadConfig
	datasetCfg   config.DatasetConfig
	retrievalCfg config.RetrievalConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor TextExtractor,
	embedder embedding.Client,
	transcripts youtube.Fetcher,
	uploadCfg config.UploadConfig,
	datasetCfg config.DatasetConfig,
	retrievalCfg config.RetrievalConfig,
) *Processor {
	return &Processor{
		extractor:    extractor,
		embedder:     embedder,
		transcripts:  transcripts,
		uploadCfg:    uploadCfg,
		datasetCfg:   datasetCfg,
		retrievalCfg: retrievalCfg,
	}
}

// CheckDatasetFiles 在进入导入流程之前校验扩展名与大小。
func (p *Processor) CheckDatasetFiles(files []File) error {
	if len(files) == 0 {
		return apperr.Validation("no files provided", nil)
	}
	for _, f := range files {
		if !hasExtension(f.Name, p.uploadCfg.DatasetExtensions) || !dataset.Supported(f.Name) {
			return apperr.Validation(fmt.Sprintf("unsupported file type: %s", f.Name), dataset.ErrUnsupportedFormat)
		}
		if err := p.checkSize(f); err != nil {
			return err
		}
	}
	return nil
}

// CheckDocument 校验文档的扩展名与大小。
func (p *Processor) CheckDocument(f File) error {
	if f.Name == "" {
		return apperr.Validation("no document provided", nil)
	}
	if !hasExtension(f.Name, p.uploadCfg.DocumentExtensions) {
		return apperr.Validation(fmt.Sprintf("unsupported file type: %s", f.Name), nil)
	}
	return p.checkSize(f)
}

func (p *Processor) checkSize(f File) error {
	if p.uploadCfg.MaxFileBytes > 0 && int64(len(f.Data)) > p.uploadCfg.MaxFileBytes {
		return apperr.Validation(fmt.Sprintf("file %s exceeds %d bytes", f.Name, p.uploadCfg.MaxFileBytes), apperr.ErrPayloadTooLarge)
	}
	return nil
}

// IngestDataset 把一组表格文件解析为表，并装载到只读的内存数据库中。
// 任意文件失败都会放弃整个批次。
func (p *Processor) IngestDataset(ctx context.Context, files []File) (*model.TabularArtifact, error) {
	if err := p.CheckDatasetFiles(files); err != nil {
		return nil, err
	}
	log.Infof("[Processor] 开始导入数据集, 文件数: %d", len(files))

	taken := make(map[string]bool)
	tables := make([]*model.Table, 0, len(files))
	sources := make([]string, 0, len(files))
	for _, f := range files {
		t, err := dataset.ParseFile(f.Name, f.Data)
		if err != nil {
			log.Warnf("[Processor] 解析文件失败, FileName: %s, Error: %v", f.Name, err)
			return nil, err
		}
		t.Name = dataset.TableName(f.Name, taken)
		log.Infof("[Processor] 文件解析成功, FileName: %s, Table: %s, Rows: %d, Columns: %d", f.Name, t.Name, t.RowCount(), t.ColumnCount())
		tables = append(tables, t)
		sources = append(sources, f.Name)
	}

	engine, err := dataset.Open(ctx, tables, dataset.Options{
		QueryTimeout: secondsOf(p.datasetCfg.QueryTimeoutSeconds),
		MaxRows:      p.datasetCfg.MaxResultRows,
	})
	if err != nil {
		log.Errorf("[Processor] 装载数据表失败, Error: %v", err)
		return nil, apperr.Parse("failed to load tables", err)
	}
	return &model.TabularArtifact{Tables: tables, SourceFiles: sources, Engine: engine}, nil
}

// IngestDocument 提取文档文本，切块、向量化并在 dir 下建立关键词索引。
func (p *Processor) IngestDocument(ctx context.Context, dir string, f File) (*model.IndexedArtifact, error) {
	if err := p.CheckDocument(f); err != nil {
		return nil, err
	}
	log.Infof("[Processor] 开始处理文档, FileName: %s, Size: %d字节", f.Name, len(f.Data))

	// 1. 提取文本
	text, err := p.extractText(ctx, f)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", f.Name)
		return nil, apperr.Parse("No text could be extracted from the document", ErrNoText)
	}
	text = strings.TrimSpace(text)
	log.Infof("[Processor] 步骤1: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 文本切块
	size, overlap := p.chunking()
	pieces := NewSplitter(size, overlap).Split(text)
	log.Infof("[Processor] 步骤2: 文本分块完成, chunkSize: %d, chunkOverlap: %d, 共 %d 块", size, overlap, len(pieces))
	if len(pieces) == 0 {
		return nil, apperr.Parse("No text could be extracted from the document", ErrNoText)
	}
	chunks := make([]model.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = model.Chunk{Index: i, Label: fmt.Sprintf("Segment %d", i+1), Text: piece}
	}

	words := len(strings.Fields(text))
	meta := model.ArtifactMetadata{
		Filename:             f.Name,
		ChunkSize:            size,
		ChunkOverlap:         overlap,
		WordCount:            words,
		CharacterCount:       utf8.RuneCountInString(text),
		EstimatedReadingTime: max(1, words/200),
	}
	return p.buildIndex(ctx, model.ModalityDocument, dir, chunks, meta)
}

// IngestVideo 抓取视频字幕并建立索引。字幕不可用返回解析错误。
func (p *Processor) IngestVideo(ctx context.Context, dir, videoID string) (*model.IndexedArtifact, error) {
	log.Infof("[Processor] 开始处理视频字幕, VideoID: %s", videoID)

	// 1. 抓取字幕
	transcript, err := p.transcripts.Fetch(ctx, videoID)
	if err != nil {
		log.Warnf("[Processor] 获取字幕失败, VideoID: %s, Error: %v", videoID, err)
		if errors.Is(err, youtube.ErrTranscriptUnavailable) {
			return nil, apperr.Parse("Transcripts are disabled or unavailable for this video", err)
		}
		return nil, apperr.External("failed to fetch transcript", err)
	}
	text := transcript.Text()
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Parse("Transcript is empty", ErrNoText)
	}
	log.Infof("[Processor] 步骤1: 字幕获取成功, 语言: %s, 字幕条数: %d", transcript.Language, len(transcript.Segments))

	// 2. 按字幕条切块，每块带起始时间戳
	size, overlap := p.chunking()
	groups := splitSegments(transcript.Segments, size, overlap)
	log.Infof("[Processor] 步骤2: 字幕分块完成, 共 %d 块", len(groups))
	chunks := make([]model.Chunk, len(groups))
	for i, g := range groups {
		chunks[i] = model.Chunk{Index: i, Label: youtube.Timestamp(g.Start), Text: g.Text, Start: g.Start}
	}

	words := len(strings.Fields(text))
	meta := model.ArtifactMetadata{
		VideoID:              videoID,
		Language:             transcript.Language,
		ChunkSize:            size,
		ChunkOverlap:         overlap,
		WordCount:            words,
		CharacterCount:       utf8.RuneCountInString(text),
		EstimatedReadingTime: max(1, words/200),
	}
	return p.buildIndex(ctx, model.ModalityVideo, dir, chunks, meta)
}

func (p *Processor) extractText(ctx context.Context, f File) (string, error) {
	if strings.EqualFold(filepath.Ext(f.Name), ".txt") {
		if !utf8.Valid(f.Data) {
			return "", apperr.Parse(fmt.Sprintf("error loading file %s", f.Name), errors.New("file is not valid UTF-8"))
		}
		return string(f.Data), nil
	}
	text, err := p.extractor.ExtractText(ctx, bytes.NewReader(f.Data), f.Name)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", f.Name, err)
		return "", apperr.External("text extraction failed", err)
	}
	return text, nil
}

// buildIndex 向量化全部片段并建立索引，任何一步失败都不会留下部分结果。
func (p *Processor) buildIndex(ctx context.Context, m model.Modality, dir string, chunks []model.Chunk, meta model.ArtifactMetadata) (*model.IndexedArtifact, error) {
	// 3. 向量化
	if err := p.embedChunks(ctx, chunks); err != nil {
		log.Errorf("[Processor] 步骤3: 向量化失败, Error: %v", err)
		return nil, apperr.External("embedding failed", err)
	}
	log.Infof("[Processor] 步骤3: %d 个分块向量化完成", len(chunks))

	// 4. 建立关键词索引
	meta.ArtifactID = uuid.NewString()
	meta.ChunkCount = len(chunks)
	indexDir := ""
	if dir != "" {
		indexDir = filepath.Join(dir, fmt.Sprintf("%s-%s.bleve", m, meta.ArtifactID))
	}
	idx, err := retrieval.New(chunks, indexDir)
	if err != nil {
		log.Errorf("[Processor] 步骤4: 建立索引失败, Error: %v", err)
		return nil, fmt.Errorf("build index: %w", err)
	}
	metrics.ChunksIndexed.WithLabelValues(string(m)).Add(float64(len(chunks)))
	log.Infof("[Processor] 步骤4: 索引建立成功, ArtifactID: %s", meta.ArtifactID)

	return &model.IndexedArtifact{Kind: m, Chunks: chunks, Metadata: meta, Index: idx}, nil
}

// embedChunks 分批并发地向量化，结果按片段顺序写回。
func (p *Processor) embedChunks(ctx context.Context, chunks []model.Chunk) error {
	batchSize := p.retrievalCfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.retrievalCfg.EmbedConcurrency))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for i := start; i < end; i++ {
				texts = append(texts, chunks[i].Text)
			}
			vectors, err := p.embedder.CreateEmbeddings(gctx, texts)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("batch %d-%d: got %d vectors for %d texts", start, end, len(vectors), len(texts))
			}
			for i, v := range vectors {
				chunks[start+i].Vector = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i := range chunks {
			chunks[i].Vector = nil
		}
		return err
	}
	return nil
}

func (p *Processor) chunking() (int, int) {
	size, overlap := p.retrievalCfg.ChunkSize, p.retrievalCfg.ChunkOverlap
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return size, overlap
}

// Embed 向量化一个问题，使用与导入时相同的模型。
func (p *Processor) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := p.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, apperr.External("embedding failed", err)
	}
	return v, nil
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

func secondsOf(n int) time.Duration {
	return time.Duration(n) * time.Second
}
