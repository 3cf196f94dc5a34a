package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
	"github.com/d60-Lab/tieba-pipeline/pkg/database"
)

// 内存库限单连接，连接池多连接时每条连接各是一张空库
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

type fakePost struct {
	Forum   string
	Tid     int64
	Content string
}

// fakeClient 协议桩。pages 按页号配置抓取结果，缺页返回空页；
// postFn 配置回帖行为并记录每次调用
type fakeClient struct {
	pages  map[int]*tieba.ThreadPage
	postFn func(forum string, tid int64, content string) (*tieba.PostResult, error)
	posts  []fakePost
}

func (f *fakeClient) FetchThreadPage(ctx context.Context, forum string, pn, rn int) (*tieba.ThreadPage, error) {
	if p, ok := f.pages[pn]; ok {
		return p, nil
	}
	return &tieba.ThreadPage{}, nil
}

func (f *fakeClient) AddPost(ctx context.Context, forum string, tid int64, content string) (*tieba.PostResult, error) {
	f.posts = append(f.posts, fakePost{Forum: forum, Tid: tid, Content: content})
	if f.postFn != nil {
		return f.postFn(forum, tid, content)
	}
	return &tieba.PostResult{OK: true}, nil
}
