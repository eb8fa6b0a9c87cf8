package model

import "time"

// 导入状态
const (
	IngestionStatusReady  = "ready"
	IngestionStatusFailed = "failed"
)

// IngestionRecord 定义了 ingestion_records 表的 ORM 模型。
// 每次导入尝试（无论成败）都会记录一条，用于审计与排障。
type IngestionRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"eventId"`
	SessionID    string    `gorm:"type:varchar(36);index;not null" json:"sessionId"`
	Modality     string    `gorm:"type:varchar(16);not null" json:"modality"`
	SourceName   string    `gorm:"type:varchar(255);not null" json:"sourceName"`
	Status       string    `gorm:"type:varchar(16);not null" json:"status"`
	Rows         int       `json:"rows"`
	Columns      int       `json:"columns"`
	ChunkCount   int       `json:"chunkCount"`
	ErrorKind    string    `gorm:"type:varchar(32)" json:"errorKind"`
	ErrorMessage string    `gorm:"type:text" json:"errorMessage"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (IngestionRecord) TableName() string {
	return "ingestion_records"
}
