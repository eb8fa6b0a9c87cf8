package database

import (
	"time"

	"insight-qa-go/internal/config"
	"insight-qa-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接
func InitMySQL(cfg config.MySQLConfig) error {
	var err error
	DB, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns) // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns) // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour)     // 设置了连接可复用的最大时间

	log.Info("MySQL database connected successfully")
	return nil
}

// AutoMigrate 创建或更新服务使用的表。
func AutoMigrate(models ...interface{}) error {
	return DB.AutoMigrate(models...)
}
