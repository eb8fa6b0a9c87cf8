// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insight-qa-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了问答历史记录的操作接口。
// 历史按 (会话, 问答类型) 分别存放。
type ConversationRepository interface {
	GetHistory(ctx context.Context, sessionID string, m model.Modality) ([]model.ChatMessage, error)
	UpdateHistory(ctx context.Context, sessionID string, m model.Modality, messages []model.ChatMessage) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(sessionID string, m model.Modality) string {
	return fmt.Sprintf("conversation:%s:%s", sessionID, m)
}

// GetHistory 从 Redis 获取问答历史记录。
func (r *redisConversationRepository) GetHistory(ctx context.Context, sessionID string, m model.Modality) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(sessionID, m)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// UpdateHistory 在 Redis 中更新问答历史记录，只保留最近 20 条。
func (r *redisConversationRepository) UpdateHistory(ctx context.Context, sessionID string, m model.Modality, messages []model.ChatMessage) error {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(sessionID, m), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// DeleteSession 删除会话下所有问答类型的历史。
func (r *redisConversationRepository) DeleteSession(ctx context.Context, sessionID string) error {
	keys := make([]string, 0, len(model.Modalities))
	for _, m := range model.Modalities {
		keys = append(keys, conversationKey(sessionID, m))
	}
	if err := r.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation history: %w", err)
	}
	return nil
}
