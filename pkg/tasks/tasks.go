// Package tasks defines the structure for events that are sent to Kafka.
package tasks

import (
	"time"

	"insight-qa-go/internal/model"
)

// IngestionEvent describes one ingestion attempt, successful or not.
type IngestionEvent struct {
	EventID      string    `json:"event_id"`
	SessionID    string    `json:"session_id"`
	Modality     string    `json:"modality"`
	SourceName   string    `json:"source_name"`
	Status       string    `json:"status"`
	Rows         int       `json:"rows,omitempty"`
	Columns      int       `json:"columns,omitempty"`
	ChunkCount   int       `json:"chunk_count,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Record converts the event into its audit table row.
func (e IngestionEvent) Record() *model.IngestionRecord {
	return &model.IngestionRecord{
		EventID:      e.EventID,
		SessionID:    e.SessionID,
		Modality:     e.Modality,
		SourceName:   e.SourceName,
		Status:       e.Status,
		Rows:         e.Rows,
		Columns:      e.Columns,
		ChunkCount:   e.ChunkCount,
		ErrorKind:    e.ErrorKind,
		ErrorMessage: e.ErrorMessage,
		DurationMs:   e.DurationMs,
		CreatedAt:    e.OccurredAt,
	}
}
