package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

// InitDB 按配置打开数据库并迁移 schema（仅增列，不丢数据）
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dial = postgres.Open(cfg.Database.DSN)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dial = sqlite.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate AutoMigrate 全部模型（gorm 只增不删，满足就地升级）
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ForumState{},
		&model.Thread{},
		&model.ImageTask{},
		&model.RelayTask{},
	)
}
