package db

import (
	"fmt"
	"time"

	"catalog/internal/domain/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 接続プールの設定
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect はDBに接続して *gorm.DB を返す。
func Connect(dsn string, pool PoolConfig, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty dsn")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if log != nil {
		log.Info("database connected", zap.Int("max_open_conns", pool.MaxOpenConns))
	}
	return gdb, nil
}

// 書き込みストアのテーブル
func MigrateWrite(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.Product{},
		&model.OutboxEvent{},
		&model.DeadLetter{},
		&model.AuditLog{},
	)
}

// 読み取りストアのテーブル
func MigrateRead(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&model.ProductReadModel{})
}

func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
