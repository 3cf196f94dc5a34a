package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

var contentTypeExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Downloader 图片任务队列消费者。
// 图片下载是管线中唯一安全并行扇出的环节（各图独立且幂等），
// 固定 worker 数 + 全局限速
type Downloader struct {
	imageRepo  repository.ImageTaskRepository
	threadRepo repository.ThreadRepository
	hc         *http.Client
	limiter    *rate.Limiter

	baseDir     string
	concurrency int
	attempts    int
}

func NewDownloader(
	imageRepo repository.ImageTaskRepository,
	threadRepo repository.ThreadRepository,
	baseDir string,
	concurrency, attempts int,
	ratePerSec float64,
) *Downloader {
	if concurrency <= 0 {
		concurrency = 4
	}
	if attempts <= 0 {
		attempts = 3
	}
	if ratePerSec <= 0 {
		ratePerSec = 8
	}
	return &Downloader{
		imageRepo:   imageRepo,
		threadRepo:  threadRepo,
		hc:          &http.Client{Timeout: 45 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), 1),
		baseDir:     filepath.Join(baseDir, "images"),
		concurrency: concurrency,
		attempts:    attempts,
	}
}

type DownloadParams struct {
	Limit        int
	IncludeError bool
}

type DownloadResult struct {
	StuckReset int64 `json:"stuck_reset"`
	Claimed    int   `json:"claimed"`
	Downloaded int   `json:"downloaded"`
	Failed     int   `json:"failed"`
}

func (d *Downloader) Run(ctx context.Context, p DownloadParams) (DownloadResult, error) {
	var res DownloadResult

	reset, err := d.imageRepo.ResetStuck(ctx)
	if err != nil {
		return res, err
	}
	res.StuckReset = reset
	if reset > 0 {
		logger.Warn("reset stuck image tasks", zap.Int64("count", reset))
	}

	if p.Limit <= 0 {
		p.Limit = 200
	}
	tasks, err := d.imageRepo.Claim(ctx, p.Limit, p.IncludeError)
	if err != nil {
		return res, err
	}
	res.Claimed = len(tasks)
	if len(tasks) == 0 {
		logger.Info("no image tasks to download")
		return res, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	ch := make(chan model.ImageTask)

	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range ch {
				ok := d.handle(ctx, task)
				mu.Lock()
				if ok {
					res.Downloaded++
				} else {
					res.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	for _, t := range tasks {
		ch <- t
	}
	close(ch)
	wg.Wait()

	return res, nil
}

// handle 单任务：已有本地文件直接置 DONE，否则下载后落终态
func (d *Downloader) handle(ctx context.Context, task model.ImageTask) bool {
	if task.LocalPath != "" {
		if _, err := os.Stat(task.LocalPath); err == nil {
			_ = d.imageRepo.MarkDone(ctx, task.ID, task.LocalPath)
			return true
		}
	}

	forum := "unknown_forum"
	if th, err := d.threadRepo.Get(ctx, task.Tid); err == nil && th != nil && th.Fname != "" {
		forum = th.Fname
	}

	hash := task.Hash
	if hash == "" {
		sum := sha1.Sum([]byte(task.URL))
		hash = hex.EncodeToString(sum[:])[:16]
	}
	dst := filepath.Join(d.baseDir, forum, fmt.Sprintf("%d", task.Tid), hash+".jpg")

	finalPath, err := d.download(ctx, task.URL, dst)
	if err != nil {
		_ = d.imageRepo.MarkError(ctx, task.ID, err.Error())
		logger.Warn("image download failed",
			zap.Uint("id", task.ID), zap.Int64("tid", task.Tid),
			zap.String("url", task.URL), zap.Error(err))
		return false
	}
	_ = d.imageRepo.MarkDone(ctx, task.ID, finalPath)
	logger.Info("image downloaded",
		zap.Uint("id", task.ID), zap.Int64("tid", task.Tid), zap.String("path", finalPath))
	return true
}

// download 带重试；写 .part 临时文件后原子改名，失败不留半截文件
func (d *Downloader) download(ctx context.Context, rawURL, dst string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", err
		}
		finalPath, err := d.fetchOnce(ctx, rawURL, dst)
		if err == nil {
			return finalPath, nil
		}
		lastErr = err
		wait := time.Duration(1<<(attempt-1)) * time.Second
		if wait > 8*time.Second {
			wait = 8 * time.Second
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, dst string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "tieba-pipeline/0.2")

	resp, err := d.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("http %d fetching %s", resp.StatusCode, rawURL)
	}

	if ext := guessExt(rawURL, resp.Header.Get("Content-Type")); ext != filepath.Ext(dst) {
		dst = strings.TrimSuffix(dst, filepath.Ext(dst)) + ext
	}
	tmp := dst + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return dst, nil
}

// guessExt URL 后缀优先，其次 Content-Type，兜底 .jpg
func guessExt(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".jpg", ".png", ".gif", ".webp", ".bmp":
			return ext
		case ".jpeg":
			return ".jpg"
		}
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeExt[ct]; ok {
		return ext
	}
	return ".jpg"
}
