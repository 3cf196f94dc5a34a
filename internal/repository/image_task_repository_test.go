package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

func TestImageUpsertDoesNotResetDone(t *testing.T) {
	db := newTestDB(t)
	repo := NewImageTaskRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{
		Tid: 1, URL: "https://img/a.jpg", Status: model.ImageStatusPending,
	}))

	var task model.ImageTask
	require.NoError(t, db.Where("tid = ? AND url = ?", 1, "https://img/a.jpg").First(&task).Error)
	require.NoError(t, repo.MarkDone(ctx, task.ID, "data/images/testbar/1/abc.jpg"))

	// 同帖再抓到同图：元数据可刷新，状态与落盘路径不动
	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{
		Tid: 1, URL: "https://img/a.jpg", Hash: "deadbeef", Status: model.ImageStatusPending,
	}))

	require.NoError(t, db.First(&task, task.ID).Error)
	assert.Equal(t, model.ImageStatusDone, task.Status)
	assert.Equal(t, "data/images/testbar/1/abc.jpg", task.LocalPath)
	assert.Equal(t, "deadbeef", task.Hash)
}

func TestImageClaimExclusive(t *testing.T) {
	db := newTestDB(t)
	repo := NewImageTaskRepository(db)
	ctx := context.Background()

	for i, url := range []string{"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"} {
		require.NoError(t, repo.Upsert(ctx, &model.ImageTask{
			Tid: int64(i + 1), URL: url, Status: model.ImageStatusPending,
		}))
	}

	first, err := repo.Claim(ctx, 2, false)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// 已被领取的任务不会再次分发
	second, err := repo.Claim(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, second, 1)
	for _, got := range first {
		assert.NotEqual(t, second[0].ID, got.ID)
	}

	var task model.ImageTask
	require.NoError(t, db.First(&task, first[0].ID).Error)
	assert.Equal(t, model.ImageStatusDownloading, task.Status)
	assert.Equal(t, 1, task.Attempts)
}

func TestImageClaimIncludeError(t *testing.T) {
	db := newTestDB(t)
	repo := NewImageTaskRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{Tid: 1, URL: "https://img/a.jpg", Status: model.ImageStatusPending}))
	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{Tid: 2, URL: "https://img/b.jpg", Status: model.ImageStatusPending}))

	batch, err := repo.Claim(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.NoError(t, repo.MarkError(ctx, batch[0].ID, "http 404"))
	require.NoError(t, repo.MarkDone(ctx, batch[1].ID, "x.jpg"))

	// 默认不领 ERROR
	got, err := repo.Claim(ctx, 10, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.Claim(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, batch[0].ID, got[0].ID)

	var task model.ImageTask
	require.NoError(t, db.First(&task, batch[0].ID).Error)
	assert.Equal(t, 2, task.Attempts)
}

func TestImageResetStuckAndRelease(t *testing.T) {
	db := newTestDB(t)
	repo := NewImageTaskRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{Tid: 1, URL: "https://img/a.jpg", Status: model.ImageStatusPending}))
	batch, err := repo.Claim(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// 进程崩溃后重启：悬挂的 DOWNLOADING 归还队列
	n, err := repo.ResetStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var task model.ImageTask
	require.NoError(t, db.First(&task, batch[0].ID).Error)
	assert.Equal(t, model.ImageStatusPending, task.Status)
	assert.Equal(t, 1, task.Attempts) // attempts 不回退

	batch, err = repo.Claim(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, repo.Release(ctx, []uint{batch[0].ID}))

	require.NoError(t, db.First(&task, batch[0].ID).Error)
	assert.Equal(t, model.ImageStatusPending, task.Status)
}

func TestImageURLsForThread(t *testing.T) {
	db := newTestDB(t)
	repo := NewImageTaskRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{Tid: 1, URL: "https://img/a.jpg"}))
	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{Tid: 1, URL: "https://img/b.jpg"}))
	require.NoError(t, repo.Upsert(ctx, &model.ImageTask{Tid: 2, URL: "https://img/c.jpg"}))

	urls, err := repo.URLsForThread(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/a.jpg", "https://img/b.jpg"}, urls)

	urls, err = repo.URLsForThread(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/a.jpg"}, urls)
}
