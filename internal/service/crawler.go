package service

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// Crawler 水位驱动的增量抓取。
// 置顶帖不参与停止条件（否则会误判“无新帖”或“到达历史边界”），
// 但参与水位计算
type Crawler struct {
	client     tieba.Client
	stateRepo  repository.ForumStateRepository
	threadRepo repository.ThreadRepository
	imageRepo  repository.ImageTaskRepository
	rules      []config.CategoryRule

	sleepMin time.Duration
	sleepMax time.Duration
}

func NewCrawler(
	client tieba.Client,
	stateRepo repository.ForumStateRepository,
	threadRepo repository.ThreadRepository,
	imageRepo repository.ImageTaskRepository,
	rules []config.CategoryRule,
	sleepMin, sleepMax time.Duration,
) *Crawler {
	if sleepMax < sleepMin {
		sleepMax = sleepMin
	}
	return &Crawler{
		client:     client,
		stateRepo:  stateRepo,
		threadRepo: threadRepo,
		imageRepo:  imageRepo,
		rules:      rules,
		sleepMin:   sleepMin,
		sleepMax:   sleepMax,
	}
}

type CrawlParams struct {
	Forum          string
	PageSize       int
	InitialHours   int
	OverlapSeconds int
	MaxPages       int
}

type CrawlResult struct {
	ThreadsUpserted     int   `json:"threads_upserted"`
	ImagesEnqueued      int   `json:"images_enqueued"`
	CollectionsDetected int   `json:"collections_detected"`
	PagesFetched        int   `json:"pages_fetched"`
	LastCrawlTS         int64 `json:"last_crawl_ts"`
}

// Run 执行一轮增量抓取。
// 窗口起点：首轮 = now-initial，增量 = 水位-overlap（clamp 到 0）。
// 停止条件：空页 / 非置顶帖全部早于窗口起点 / 协议报无更多页 / 到达 maxPages。
// 水位仅在本轮观察到至少一帖时落盘，且是最后一步
func (c *Crawler) Run(ctx context.Context, p CrawlParams) (CrawlResult, error) {
	var res CrawlResult

	state, err := c.stateRepo.Get(ctx, p.Forum)
	if err != nil {
		return res, err
	}

	now := time.Now().Unix()
	var sinceTS, maxSeen int64
	if state == nil || state.LastCrawlTS == 0 {
		sinceTS = now - int64(p.InitialHours)*3600
		logger.Info("first crawl run",
			zap.String("forum", p.Forum), zap.Int64("since_ts", sinceTS),
			zap.Int("initial_hours", p.InitialHours))
	} else {
		sinceTS = state.LastCrawlTS - int64(p.OverlapSeconds)
		if sinceTS < 0 {
			sinceTS = 0
		}
		maxSeen = state.LastCrawlTS
		logger.Info("incremental crawl run",
			zap.String("forum", p.Forum), zap.Int64("since_ts", sinceTS),
			zap.Int64("last_crawl_ts", state.LastCrawlTS), zap.Int("overlap_seconds", p.OverlapSeconds))
	}

	for pn := 1; pn <= p.MaxPages; pn++ {
		if pn > 1 {
			if err := c.pageSleep(ctx); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := c.client.FetchThreadPage(ctx, p.Forum, pn, p.PageSize)
		if err != nil {
			return res, err
		}
		res.PagesFetched++

		if len(page.Items) == 0 {
			logger.Info("no threads returned, stop", zap.String("forum", p.Forum), zap.Int("pn", pn))
			break
		}

		anyCandidate := false
		allOld := true
		for _, item := range page.Items {
			if item.CreateTime > maxSeen {
				maxSeen = item.CreateTime
			}
			if item.IsTop {
				continue
			}
			anyCandidate = true
			if item.CreateTime > sinceTS {
				allOld = false
			}
		}

		for _, item := range page.Items {
			if item.CreateTime <= sinceTS {
				continue
			}
			row := tieba.ThreadToModel(item)
			if d := DetectCollection(row.Title, c.rules); d.IsCollection {
				cat := d.Category
				row.ThreadRole = model.RoleCollection
				row.Category = &cat
				y, w := d.Year, d.Week
				row.CollectionYear = &y
				row.CollectionWeek = &w
				res.CollectionsDetected++
			}
			if err := c.threadRepo.Upsert(ctx, row); err != nil {
				return res, err
			}
			res.ThreadsUpserted++

			for _, img := range tieba.ImageTasksFromThread(item) {
				if err := c.imageRepo.Upsert(ctx, img); err != nil {
					return res, err
				}
				res.ImagesEnqueued++
			}
		}

		logger.Info("crawled page",
			zap.String("forum", p.Forum), zap.Int("pn", pn),
			zap.Int("threads", len(page.Items)), zap.Bool("has_more", page.HasMore),
			zap.Bool("all_old", allOld), zap.Int64("max_seen_ts", maxSeen))

		if !anyCandidate {
			// 整页都是置顶帖，继续翻页
			continue
		}
		if allOld {
			logger.Info("reached history boundary, stop", zap.String("forum", p.Forum), zap.Int("pn", pn))
			break
		}
		if !page.HasMore {
			logger.Info("no more pages, stop", zap.String("forum", p.Forum), zap.Int("pn", pn))
			break
		}
	}

	// 空转（一帖未见）不落水位，避免把水位打回 0
	if maxSeen > 0 {
		if err := c.stateRepo.Set(ctx, p.Forum, maxSeen); err != nil {
			return res, err
		}
		res.LastCrawlTS = maxSeen
	}

	logger.Info("crawl done",
		zap.String("forum", p.Forum),
		zap.Int("upserted", res.ThreadsUpserted),
		zap.Int("images_enqueued", res.ImagesEnqueued),
		zap.Int("collections_detected", res.CollectionsDetected),
		zap.Int64("last_crawl_ts", maxSeen))
	return res, nil
}

// pageSleep 页间随机延迟（限频礼让）
func (c *Crawler) pageSleep(ctx context.Context) error {
	d := c.sleepMin
	if span := c.sleepMax - c.sleepMin; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
