package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条问答消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	SQLQuery  string    `json:"sql_query,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
