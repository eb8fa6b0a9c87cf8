package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insight-qa-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// InterviewRepository 保存进行中的面试 (Redis) 与最终报告 (MySQL)。
type InterviewRepository interface {
	// GetInterview 返回会话当前的面试，没有时返回 nil, nil。
	GetInterview(ctx context.Context, sessionID string) (*model.Interview, error)
	SaveInterview(ctx context.Context, sessionID string, interview *model.Interview) error
	DeleteSession(ctx context.Context, sessionID string) error
	SaveReport(record *model.InterviewReportRecord) error
}

type interviewRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
	ttl         time.Duration
}

// NewInterviewRepository 创建一个新的 InterviewRepository 实例。
func NewInterviewRepository(db *gorm.DB, redisClient *redis.Client, ttl time.Duration) InterviewRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &interviewRepository{db: db, redisClient: redisClient, ttl: ttl}
}

func interviewKey(sessionID string) string {
	return fmt.Sprintf("interview:%s", sessionID)
}

func (r *interviewRepository) GetInterview(ctx context.Context, sessionID string) (*model.Interview, error) {
	data, err := r.redisClient.Get(ctx, interviewKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	var iv model.Interview
	if err := json.Unmarshal(data, &iv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interview: %w", err)
	}
	return &iv, nil
}

func (r *interviewRepository) SaveInterview(ctx context.Context, sessionID string, interview *model.Interview) error {
	data, err := json.Marshal(interview)
	if err != nil {
		return fmt.Errorf("failed to marshal interview: %w", err)
	}
	if err := r.redisClient.Set(ctx, interviewKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save interview: %w", err)
	}
	return nil
}

func (r *interviewRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, interviewKey(sessionID)).Err()
}

// SaveReport 在数据库中创建一条面试报告记录。
func (r *interviewRepository) SaveReport(record *model.InterviewReportRecord) error {
	return r.db.Create(record).Error
}
