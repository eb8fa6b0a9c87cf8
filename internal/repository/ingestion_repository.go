package repository

import (
	"context"
	"fmt"
	"time"

	"insight-qa-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const attemptsTTL = 24 * time.Hour

// IngestionRepository 定义了导入审计记录的持久化操作。
type IngestionRepository interface {
	// Create 写入一条导入记录，EventID 重复时忽略。
	Create(record *model.IngestionRecord) error
	FindBySession(sessionID string) ([]model.IngestionRecord, error)

	// 消费失败计数 (Redis)
	IncrAttempts(ctx context.Context, eventID string) (int64, error)
	ClearAttempts(ctx context.Context, eventID string) error
}

// ingestionRepository 是 IngestionRepository 接口的 GORM+Redis 实现。
type ingestionRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewIngestionRepository 创建一个新的 IngestionRepository 实例。
func NewIngestionRepository(db *gorm.DB, redisClient *redis.Client) IngestionRepository {
	return &ingestionRepository{db: db, redisClient: redisClient}
}

func attemptsKey(eventID string) string {
	return fmt.Sprintf("kafka:attempts:%s", eventID)
}

func (r *ingestionRepository) Create(record *model.IngestionRecord) error {
	return r.db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).Create(record).Error
}

// FindBySession 按时间倒序返回会话的导入记录。
func (r *ingestionRepository) FindBySession(sessionID string) ([]model.IngestionRecord, error) {
	var records []model.IngestionRecord
	err := r.db.Where("session_id = ?", sessionID).Order("created_at desc").Find(&records).Error
	return records, err
}

// IncrAttempts 递增事件的失败次数，计数在 24 小时后过期。
func (r *ingestionRepository) IncrAttempts(ctx context.Context, eventID string) (int64, error) {
	key := attemptsKey(eventID)
	n, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = r.redisClient.Expire(ctx, key, attemptsTTL).Err()
	return n, nil
}

func (r *ingestionRepository) ClearAttempts(ctx context.Context, eventID string) error {
	return r.redisClient.Del(ctx, attemptsKey(eventID)).Err()
}
