package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insight-qa-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const codingTTL = 7 * 24 * time.Hour

// CodingRepository 保存会话当前的编程练习、提示次数与出题历史。
type CodingRepository interface {
	// GetExercise 返回当前练习，没有时返回 nil, nil。
	GetExercise(ctx context.Context, sessionID string) (*model.CodingExercise, error)
	// SaveExercise 替换当前练习并清零提示次数。
	SaveExercise(ctx context.Context, sessionID string, exercise *model.CodingExercise) error
	IncrHintAttempt(ctx context.Context, sessionID string) (int, error)
	PreviousExercises(ctx context.Context, sessionID string) ([]model.PreviousExercise, error)
	// AppendPreviousExercise 追加出题历史，只保留最近 keep 条。
	AppendPreviousExercise(ctx context.Context, sessionID string, prev model.PreviousExercise, keep int) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type redisCodingRepository struct {
	redisClient *redis.Client
}

// NewCodingRepository 创建一个新的 CodingRepository 实例。
func NewCodingRepository(redisClient *redis.Client) CodingRepository {
	return &redisCodingRepository{redisClient: redisClient}
}

func exerciseKey(sessionID string) string { return fmt.Sprintf("coding:%s:exercise", sessionID) }
func hintKey(sessionID string) string     { return fmt.Sprintf("coding:%s:hints", sessionID) }
func previousKey(sessionID string) string { return fmt.Sprintf("coding:%s:previous", sessionID) }

func (r *redisCodingRepository) GetExercise(ctx context.Context, sessionID string) (*model.CodingExercise, error) {
	data, err := r.redisClient.Get(ctx, exerciseKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coding exercise: %w", err)
	}
	var ex model.CodingExercise
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coding exercise: %w", err)
	}
	return &ex, nil
}

func (r *redisCodingRepository) SaveExercise(ctx context.Context, sessionID string, exercise *model.CodingExercise) error {
	data, err := json.Marshal(exercise)
	if err != nil {
		return fmt.Errorf("failed to marshal coding exercise: %w", err)
	}
	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, exerciseKey(sessionID), data, codingTTL)
	pipe.Del(ctx, hintKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save coding exercise: %w", err)
	}
	return nil
}

func (r *redisCodingRepository) IncrHintAttempt(ctx context.Context, sessionID string) (int, error) {
	n, err := r.redisClient.Incr(ctx, hintKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment hint attempts: %w", err)
	}
	_ = r.redisClient.Expire(ctx, hintKey(sessionID), codingTTL).Err()
	return int(n), nil
}

func (r *redisCodingRepository) PreviousExercises(ctx context.Context, sessionID string) ([]model.PreviousExercise, error) {
	items, err := r.redisClient.LRange(ctx, previousKey(sessionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get previous exercises: %w", err)
	}
	out := make([]model.PreviousExercise, 0, len(items))
	for _, item := range items {
		var p model.PreviousExercise
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *redisCodingRepository) AppendPreviousExercise(ctx context.Context, sessionID string, prev model.PreviousExercise, keep int) error {
	data, err := json.Marshal(prev)
	if err != nil {
		return err
	}
	key := previousKey(sessionID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, data)
	if keep > 0 {
		pipe.LTrim(ctx, key, int64(-keep), -1)
	}
	pipe.Expire(ctx, key, codingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append previous exercise: %w", err)
	}
	return nil
}

func (r *redisCodingRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, exerciseKey(sessionID), hintKey(sessionID), previousKey(sessionID)).Err()
}
