// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"insight-qa-go/internal/config"
	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ChunkMirror 把会话的片段与向量镜像到 Elasticsearch，便于离线检索与排障。
type ChunkMirror struct {
	client       *elasticsearch.Client
	index        string
	modelVersion string
}

// NewChunkMirror 初始化 Elasticsearch 客户端，并在索引不存在时按向量维度创建它。
func NewChunkMirror(esCfg config.ElasticsearchConfig, dims int, modelVersion string) (*ChunkMirror, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	m := &ChunkMirror{client: client, index: esCfg.IndexName, modelVersion: modelVersion}
	if err := m.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return m, nil
}

func indexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"session_id": { "type": "keyword" },
				"modality": { "type": "keyword" },
				"artifact_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"label": { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (m *ChunkMirror) createIndexIfNotExists(dims int) error {
	res, err := m.client.Indices.Exists([]string{m.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", m.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = m.client.Indices.Create(m.index, m.client.Indices.Create.WithBody(strings.NewReader(indexMapping(dims))))
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", m.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", m.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", m.index)
	return nil
}

// Documents 把产物的片段转换为镜像文档。
func Documents(sessionID string, art *model.IndexedArtifact, modelVersion string) []model.EsChunkDocument {
	docs := make([]model.EsChunkDocument, 0, len(art.Chunks))
	for _, c := range art.Chunks {
		docs = append(docs, model.EsChunkDocument{
			VectorID:     fmt.Sprintf("%s_%d", art.Metadata.ArtifactID, c.Index),
			SessionID:    sessionID,
			Modality:     string(art.Kind),
			ArtifactID:   art.Metadata.ArtifactID,
			ChunkIndex:   c.Index,
			Label:        c.Label,
			TextContent:  c.Text,
			Vector:       c.Vector,
			ModelVersion: modelVersion,
		})
	}
	return docs
}

// bulkBody 生成 _bulk 接口的 NDJSON 请求体。
func bulkBody(index string, docs []model.EsChunkDocument) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		meta := map[string]map[string]string{"index": {"_index": index, "_id": d.VectorID}}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}

// Replace 删除 (会话, 类型) 下的旧片段后批量写入新产物的片段。
func (m *ChunkMirror) Replace(ctx context.Context, sessionID string, art *model.IndexedArtifact) error {
	if err := m.deleteBy(ctx, map[string]string{"session_id": sessionID, "modality": string(art.Kind)}); err != nil {
		return err
	}
	docs := Documents(sessionID, art, m.modelVersion)
	if len(docs) == 0 {
		return nil
	}
	body, err := bulkBody(m.index, docs)
	if err != nil {
		return err
	}
	req := esapi.BulkRequest{Body: body, Refresh: "false"}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to bulk index chunks")
	}
	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err == nil && parsed.Errors {
		return errors.New("some chunks failed to index")
	}
	return nil
}

// DeleteSession 删除会话的全部镜像片段。
func (m *ChunkMirror) DeleteSession(ctx context.Context, sessionID string) error {
	return m.deleteBy(ctx, map[string]string{"session_id": sessionID})
}

func (m *ChunkMirror) deleteBy(ctx context.Context, terms map[string]string) error {
	filters := make([]map[string]any, 0, len(terms))
	for field, value := range terms {
		filters = append(filters, map[string]any{"term": map[string]string{field: value}})
	}
	query := map[string]any{"query": map[string]any{"bool": map[string]any{"filter": filters}}}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}
	res, err := m.client.DeleteByQuery([]string{m.index}, &buf, m.client.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除片段出错: %s", res.String())
		return errors.New("failed to delete chunks")
	}
	return nil
}
