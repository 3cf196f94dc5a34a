package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/pkg/database"
)

// 每个测试独立的内存库。限制到单连接，
// 否则连接池里每个连接都是一张独立的 :memory: 库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedThread(t *testing.T, db *gorm.DB, th *model.Thread) {
	t.Helper()
	if th.ProcessStatus == "" {
		th.ProcessStatus = model.ProcessNew
	}
	if th.ThreadRole == "" {
		th.ThreadRole = model.RoleNormal
	}
	require.NoError(t, db.Create(th).Error)
}

func strptr(s string) *string { return &s }

func intptr(n int) *int { return &n }
