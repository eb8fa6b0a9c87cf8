// Package retrieval 实现片段集合上的向量检索与关键词检索。
package retrieval

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	"insight-qa-go/internal/model"

	"github.com/blevesearch/bleve"
)

// Index 持有片段、向量与一个 bleve 关键词索引。构建后只读。
type Index struct {
	chunks []model.Chunk
	dir    string

	mu     sync.RWMutex
	bleve  bleve.Index
	closed bool
}

var _ model.Searcher = (*Index)(nil)

type indexedChunk struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// New 为 chunks 构建索引。dir 非空时关键词索引写入磁盘目录 dir，否则仅在内存中。
// 任意片段缺少向量或向量维度不一致都会导致构建失败。
func New(chunks []model.Chunk, dir string) (*Index, error) {
	dim := -1
	for i := range chunks {
		if len(chunks[i].Vector) == 0 {
			return nil, fmt.Errorf("chunk %d has no embedding", i)
		}
		if dim >= 0 && len(chunks[i].Vector) != dim {
			return nil, fmt.Errorf("chunk %d has dimension %d, want %d", i, len(chunks[i].Vector), dim)
		}
		dim = len(chunks[i].Vector)
	}

	var (
		idx bleve.Index
		err error
	)
	mapping := bleve.NewIndexMapping()
	if dir == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.New(dir, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("创建关键词索引失败: %w", err)
	}

	batch := idx.NewBatch()
	for i := range chunks {
		if err := batch.Index(strconv.Itoa(i), indexedChunk{Label: chunks[i].Label, Text: chunks[i].Text}); err != nil {
			idx.Close()
			removeDir(dir)
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		removeDir(dir)
		return nil, fmt.Errorf("写入关键词索引失败: %w", err)
	}

	return &Index{chunks: chunks, dir: dir, bleve: idx}, nil
}

// Len 返回片段数量。
func (x *Index) Len() int { return len(x.chunks) }

// TopK 按余弦相似度降序返回最多 k 个片段，分数相同时序号小的在前。
func (x *Index) TopK(query []float32, k int) []model.ScoredChunk {
	if k <= 0 || len(x.chunks) == 0 {
		return nil
	}
	scored := make([]model.ScoredChunk, len(x.chunks))
	for i := range x.chunks {
		scored[i] = model.ScoredChunk{Chunk: &x.chunks[i], Score: Cosine(query, x.chunks[i].Vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Index < scored[j].Chunk.Index
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Keyword 在关键词索引上执行匹配查询。
func (x *Index) Keyword(q string, k int) ([]model.ScoredChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, fmt.Errorf("index closed")
	}
	if k <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(q), k, 0, false)
	res, err := x.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredChunk, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(x.chunks) {
			continue
		}
		out = append(out, model.ScoredChunk{Chunk: &x.chunks[i], Score: hit.Score})
	}
	return out, nil
}

// Close 关闭关键词索引并删除磁盘目录。重复调用是安全的。
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	err := x.bleve.Close()
	removeDir(x.dir)
	return err
}

func removeDir(dir string) {
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}

// Cosine 计算两个向量的余弦相似度，任一为零向量时返回 0。
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Bucket 根据阈值给出相关度分档。
func Bucket(score, high, medium float64) model.Bucket {
	switch {
	case score >= high:
		return model.BucketHigh
	case score >= medium:
		return model.BucketMedium
	}
	return model.BucketLow
}
