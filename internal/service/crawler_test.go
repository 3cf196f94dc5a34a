package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
)

func newTestCrawler(t *testing.T, client tieba.Client) (*Crawler, repository.ForumStateRepository, repository.ThreadRepository, repository.ImageTaskRepository) {
	t.Helper()
	db := newTestDB(t)
	stateRepo := repository.NewForumStateRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	imageRepo := repository.NewImageTaskRepository(db)
	c := NewCrawler(client, stateRepo, threadRepo, imageRepo, testRules, 0, 0)
	return c, stateRepo, threadRepo, imageRepo
}

func crawlParams() CrawlParams {
	return CrawlParams{Forum: "testbar", PageSize: 50, InitialHours: 24, OverlapSeconds: 600, MaxPages: 10}
}

func TestCrawlerFirstRun(t *testing.T) {
	now := time.Now().Unix()
	client := &fakeClient{pages: map[int]*tieba.ThreadPage{
		1: {
			HasMore: false,
			Items: []tieba.ThreadItem{
				// 置顶老帖：不参与停止判定，也不入库（窗口外）
				{Tid: 9, Fname: "testbar", Title: "置顶公告", CreateTime: now - 90*86400, IsTop: true},
				{Tid: 1, Fname: "testbar", Title: "新帖一", CreateTime: now - 100,
					Images: []tieba.ThreadImage{{BigSrc: "https://img/1.jpg"}}},
				{Tid: 2, Fname: "testbar", Title: "新帖二", CreateTime: now - 50},
				{Tid: 3, Fname: "testbar", Title: "【周报】2026年第5周 社交合集", CreateTime: now - 10},
			},
		},
	}}

	c, stateRepo, threadRepo, imageRepo := newTestCrawler(t, client)
	res, err := c.Run(context.Background(), crawlParams())
	require.NoError(t, err)

	assert.Equal(t, 3, res.ThreadsUpserted)
	assert.Equal(t, 1, res.ImagesEnqueued)
	assert.Equal(t, 1, res.CollectionsDetected)
	assert.Equal(t, 1, res.PagesFetched)
	assert.Equal(t, now-10, res.LastCrawlTS)

	state, err := stateRepo.Get(context.Background(), "testbar")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, now-10, state.LastCrawlTS)

	// 合集帖在抓取时即识别
	th, err := threadRepo.Get(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, th)
	assert.Equal(t, model.RoleCollection, th.ThreadRole)
	require.NotNil(t, th.Category)
	assert.Equal(t, "social", *th.Category)
	require.NotNil(t, th.CollectionWeek)
	assert.Equal(t, 5, *th.CollectionWeek)

	cnt, err := imageRepo.Count(context.Background(), "testbar")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

func TestCrawlerPinnedOnlyPageDoesNotStop(t *testing.T) {
	now := time.Now().Unix()
	client := &fakeClient{pages: map[int]*tieba.ThreadPage{
		// 整页置顶：不判停，继续翻页；下一页为空页才停
		1: {
			HasMore: true,
			Items: []tieba.ThreadItem{
				{Tid: 9, Fname: "testbar", Title: "置顶公告", CreateTime: now - 100, IsTop: true},
			},
		},
	}}

	c, stateRepo, _, _ := newTestCrawler(t, client)
	res, err := c.Run(context.Background(), crawlParams())
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesFetched)
	// 置顶帖参与水位
	state, err := stateRepo.Get(context.Background(), "testbar")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, now-100, state.LastCrawlTS)
}

func TestCrawlerIncrementalStopsAtBoundary(t *testing.T) {
	now := time.Now().Unix()
	watermark := now - 1000

	client := &fakeClient{pages: map[int]*tieba.ThreadPage{
		1: {
			HasMore: true, // 协议说还有更多页，但整页在窗口外就停
			Items: []tieba.ThreadItem{
				{Tid: 1, Fname: "testbar", Title: "老帖", CreateTime: watermark - 5000},
				{Tid: 2, Fname: "testbar", Title: "更老的帖", CreateTime: watermark - 9000},
			},
		},
	}}

	c, stateRepo, _, _ := newTestCrawler(t, client)
	require.NoError(t, stateRepo.Set(context.Background(), "testbar", watermark))

	res, err := c.Run(context.Background(), crawlParams())
	require.NoError(t, err)

	assert.Equal(t, 0, res.ThreadsUpserted)
	assert.Equal(t, 1, res.PagesFetched)

	// 水位单调不减
	state, err := stateRepo.Get(context.Background(), "testbar")
	require.NoError(t, err)
	assert.Equal(t, watermark, state.LastCrawlTS)
}

func TestCrawlerEmptyRunKeepsWatermark(t *testing.T) {
	client := &fakeClient{pages: map[int]*tieba.ThreadPage{}}

	c, stateRepo, _, _ := newTestCrawler(t, client)
	res, err := c.Run(context.Background(), crawlParams())
	require.NoError(t, err)

	// 一帖未见：不落水位
	assert.Equal(t, int64(0), res.LastCrawlTS)
	state, err := stateRepo.Get(context.Background(), "testbar")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestCrawlerOverlapRescanUpserts(t *testing.T) {
	now := time.Now().Unix()
	watermark := now - 300

	// 帖子落在 [水位-overlap, 水位] 重叠带内：重抓并 upsert（幂等）
	client := &fakeClient{pages: map[int]*tieba.ThreadPage{
		1: {
			HasMore: false,
			Items: []tieba.ThreadItem{
				{Tid: 1, Fname: "testbar", Title: "重叠带的帖", CreateTime: watermark - 100},
			},
		},
	}}

	c, stateRepo, threadRepo, _ := newTestCrawler(t, client)
	require.NoError(t, stateRepo.Set(context.Background(), "testbar", watermark))

	res, err := c.Run(context.Background(), crawlParams())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ThreadsUpserted)

	th, err := threadRepo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, th)
}
