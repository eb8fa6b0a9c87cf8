// Package model 包含了应用的数据模型定义。
package model

import (
	"context"
	"strings"
)

// Modality 表示会话中相互独立的问答类型。
type Modality string

const (
	ModalityDataset  Modality = "dataset"
	ModalityDocument Modality = "document"
	ModalityVideo    Modality = "video"
)

// Modalities 按固定顺序列出所有问答类型。
var Modalities = []Modality{ModalityDataset, ModalityDocument, ModalityVideo}

// ParseModality 解析请求参数中的问答类型，大小写不敏感。
func ParseModality(s string) (Modality, bool) {
	m := Modality(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modalities {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// SlotState 是 (会话, 类型) 槽位的状态。
type SlotState string

const (
	SlotEmpty     SlotState = "empty"
	SlotIngesting SlotState = "ingesting"
	SlotReady     SlotState = "ready"
)

// Artifact 是导入完成后可被查询的数据表示。
// 具体类型为 *TabularArtifact 或 *IndexedArtifact。
type Artifact interface {
	Modality() Modality
	// Release 释放底层资源，包括磁盘上的索引文件。
	Release() error
}

// Querier 在表格数据上执行只读 SQL。
type Querier interface {
	Query(ctx context.Context, query string) (*QueryResult, error)
	Close() error
}

// Table 是一张导入后不可变的表。
type Table struct {
	Name       string   `json:"name"`
	SourceFile string   `json:"source_file"`
	Columns    []string `json:"columns"`
	Types      []string `json:"types"`
	Rows       [][]any  `json:"-"`
}

// RowCount 返回数据行数（不含表头）。
func (t *Table) RowCount() int { return len(t.Rows) }

// ColumnCount 返回列数。
func (t *Table) ColumnCount() int { return len(t.Columns) }

// TabularArtifact 是一次数据集上传产生的表集合。
type TabularArtifact struct {
	Tables      []*Table
	SourceFiles []string
	Engine      Querier
}

func (a *TabularArtifact) Modality() Modality { return ModalityDataset }

func (a *TabularArtifact) Release() error {
	if a.Engine == nil {
		return nil
	}
	return a.Engine.Close()
}

// Chunk 是带有向量的文本片段，检索的基本单位。
type Chunk struct {
	Index  int       `json:"index"`
	Label  string    `json:"label"`
	Text   string    `json:"text"`
	Start  float64   `json:"start,omitempty"`
	Vector []float32 `json:"-"`
}

// ScoredChunk 是带有相似度分数的检索结果。
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}

// Searcher 是片段集合上的检索结构。
type Searcher interface {
	// TopK 按余弦相似度降序返回最多 k 个片段，分数相同时按片段序号升序。
	TopK(query []float32, k int) []ScoredChunk
	// Keyword 执行关键词检索。
	Keyword(query string, k int) ([]ScoredChunk, error)
	Close() error
}

// ArtifactMetadata 描述索引型产物的来源与切块参数。
type ArtifactMetadata struct {
	ArtifactID           string `json:"artifact_id"`
	Filename             string `json:"filename,omitempty"`
	VideoID              string `json:"video_id,omitempty"`
	Language             string `json:"language,omitempty"`
	ChunkSize            int    `json:"chunk_size"`
	ChunkOverlap         int    `json:"chunk_overlap"`
	ChunkCount           int    `json:"chunk_count"`
	WordCount            int    `json:"word_count"`
	CharacterCount       int    `json:"character_count"`
	EstimatedReadingTime int    `json:"estimated_reading_time"`
}

// IndexedArtifact 是文档或视频字幕的语义索引。
// Chunks 与其向量一一对应，构建失败时不会产生部分填充的实例。
type IndexedArtifact struct {
	Kind     Modality
	Chunks   []Chunk
	Metadata ArtifactMetadata
	Index    Searcher
}

func (a *IndexedArtifact) Modality() Modality { return a.Kind }

func (a *IndexedArtifact) Release() error {
	if a.Index == nil {
		return nil
	}
	return a.Index.Close()
}
