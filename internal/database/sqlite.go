// Package database 运行审计的 SQLite 持久化
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/model"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

var db *gorm.DB

// InitSQLite 初始化SQLite数据库并设置为全局实例
func InitSQLite(cfg config.SQLiteConfig) error {
	conn, err := Open(cfg)
	if err != nil {
		return err
	}
	db = conn
	logger.Info("SQLite database initialized successfully")
	return nil
}

// Open 打开数据库并迁移表结构，不影响全局实例
func Open(cfg config.SQLiteConfig) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger.New(
			logger.GetLogger(),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		// SQLite 默认对每次写操作开启事务，容易放大锁争用
		SkipDefaultTransaction: true,
	}

	// modernc.org/sqlite 驱动注册名为 sqlite
	dsn := cfg.Path + "?_pragma=busy_timeout(15000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	conn, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// 单连接，确保 PRAGMA 在唯一连接上生效
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	_ = conn.Exec("PRAGMA foreign_keys=ON;").Error

	if err := conn.AutoMigrate(&model.Run{}, &model.RunDevice{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return conn, nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// IsBusyError 判断是否为 SQLite 并发锁相关错误
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "cannot start a transaction within a transaction")
}

// TransactionWithRetry 在事务级别检测并发锁错误并重试
func TransactionWithRetry(conn *gorm.DB, fn func(*gorm.DB) error, attempts int, sleep time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	if sleep <= 0 {
		sleep = 50 * time.Millisecond
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = conn.Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsBusyError(err) {
			return err
		}
		time.Sleep(sleep)
		if sleep < 500*time.Millisecond {
			sleep *= 2
		}
	}
	return err
}

// Close 关闭数据库连接
func Close() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func Health() error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetStats 获取数据库统计信息
func GetStats() map[string]interface{} {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}
}
