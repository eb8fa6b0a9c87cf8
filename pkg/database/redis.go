// Package database 管理 MySQL 与 Redis 连接。
package database

import (
	"context"

	"insight-qa-go/internal/config"
	"insight-qa-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) error {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	if err := RDB.Ping(context.Background()).Err(); err != nil {
		return err
	}

	log.Info("Redis client connected successfully")
	return nil
}
