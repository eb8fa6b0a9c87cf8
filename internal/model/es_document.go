package model

// EsChunkDocument 代表镜像到 Elasticsearch 中的会话片段。
type EsChunkDocument struct {
	VectorID     string    `json:"vector_id"` // artifactID + chunkIndex
	SessionID    string    `json:"session_id"`
	Modality     string    `json:"modality"`
	ArtifactID   string    `json:"artifact_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Label        string    `json:"label"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}
