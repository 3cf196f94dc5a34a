package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
)

func TestDownloaderRun(t *testing.T) {
	db := newTestDB(t)
	threadRepo := repository.NewThreadRepository(db)
	imageRepo := repository.NewImageTaskRepository(db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("not-really-a-png"))
	}))
	defer srv.Close()

	require.NoError(t, db.Create(&model.Thread{
		Tid: 1, Fname: "testbar", CreateTime: 1000,
		ProcessStatus: model.ProcessNew, ThreadRole: model.RoleNormal,
	}).Error)
	require.NoError(t, imageRepo.Upsert(context.Background(), &model.ImageTask{
		Tid: 1, URL: srv.URL + "/ok.png", Hash: "abc123", Status: model.ImageStatusPending,
	}))
	require.NoError(t, imageRepo.Upsert(context.Background(), &model.ImageTask{
		Tid: 1, URL: srv.URL + "/missing.jpg", Status: model.ImageStatusPending,
	}))

	baseDir := t.TempDir()
	d := NewDownloader(imageRepo, threadRepo, baseDir, 2, 1, 1000)

	res, err := d.Run(context.Background(), DownloadParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.Failed)

	// 成功任务：文件按 吧/帖/哈希 落盘，扩展名跟 Content-Type
	var done model.ImageTask
	require.NoError(t, db.Where("status = ?", model.ImageStatusDone).First(&done).Error)
	assert.Equal(t, filepath.Join(baseDir, "images", "testbar", "1", "abc123.png"), done.LocalPath)
	data, err := os.ReadFile(done.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "not-really-a-png", string(data))

	// 失败任务：记错误信息，无半截文件残留
	var failed model.ImageTask
	require.NoError(t, db.Where("status = ?", model.ImageStatusError).First(&failed).Error)
	assert.Contains(t, failed.LastError, "http 404")

	// 重跑幂等：DONE 不重下，ERROR 只在 include_error 时重试
	res, err = d.Run(context.Background(), DownloadParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
}

func TestDownloaderSkipsExistingFile(t *testing.T) {
	db := newTestDB(t)
	threadRepo := repository.NewThreadRepository(db)
	imageRepo := repository.NewImageTaskRepository(db)

	existing := filepath.Join(t.TempDir(), "already.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	require.NoError(t, imageRepo.Upsert(context.Background(), &model.ImageTask{
		Tid: 1, URL: "https://img/a.jpg", Status: model.ImageStatusPending,
	}))
	var task model.ImageTask
	require.NoError(t, db.First(&task).Error)
	require.NoError(t, db.Model(&task).Update("local_path", existing).Error)

	d := NewDownloader(imageRepo, threadRepo, t.TempDir(), 1, 1, 1000)
	res, err := d.Run(context.Background(), DownloadParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)

	require.NoError(t, db.First(&task, task.ID).Error)
	assert.Equal(t, model.ImageStatusDone, task.Status)
	assert.Equal(t, existing, task.LocalPath)
}
