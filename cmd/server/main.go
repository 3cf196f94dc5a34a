package main

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/api"
	"github.com/d60-Lab/tieba-pipeline/internal/api/handler"
	"github.com/d60-Lab/tieba-pipeline/internal/jobs"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/service"
	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
	"github.com/d60-Lab/tieba-pipeline/pkg/database"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("open database failed", zap.Error(err))
		return
	}

	stateRepo := repository.NewForumStateRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	imageRepo := repository.NewImageTaskRepository(db)
	relayRepo := repository.NewRelayTaskRepository(db)

	pool := tieba.NewAccountPool(accountsFromConfig(cfg))
	client := tieba.NewRetryingClient(tieba.NewHTTPClient(pool), cfg.Crawler.RequestAttempts)

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, falling back to UTC", zap.String("timezone", cfg.Timezone))
		tz = time.UTC
	}

	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	crawler := service.NewCrawler(client, stateRepo, threadRepo, imageRepo, cfg.Rules,
		time.Duration(cfg.Crawler.PageSleepMsMin)*time.Millisecond,
		time.Duration(cfg.Crawler.PageSleepMsMax)*time.Millisecond)
	downloader := service.NewDownloader(imageRepo, threadRepo, cfg.DataDir,
		cfg.Images.Concurrency, cfg.Images.Attempts, cfg.Images.RatePerSec)
	backfill := service.NewBackfill(threadRepo, cfg.Rules)
	relay := service.NewRelay(threadRepo, relayRepo, imageRepo, client, pool, tz)
	stats := service.NewStats(threadRepo, imageRepo, relayRepo, cache,
		time.Duration(cfg.Redis.StatsTTLSecs)*time.Second, cfg.DefaultForum)

	jobManager := jobs.NewManager()

	// 可选：按 cron 表达式周期性抓取默认吧
	if cfg.Server.CrawlCron != "" && cfg.DefaultForum != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Server.CrawlCron, func() {
			jobManager.Submit("crawl_threads", func(ctx context.Context) (any, error) {
				return crawler.Run(ctx, service.CrawlParams{
					Forum:          cfg.DefaultForum,
					PageSize:       cfg.Crawler.PageSize,
					InitialHours:   cfg.Crawler.InitialHours,
					OverlapSeconds: cfg.Crawler.OverlapSeconds,
					MaxPages:       cfg.Crawler.MaxPages,
				})
			})
		})
		if err != nil {
			logger.Error("bad crawl_cron expression", zap.String("cron", cfg.Server.CrawlCron), zap.Error(err))
			return
		}
		c.Start()
		defer c.Stop()
		logger.Info("scheduled periodic crawl",
			zap.String("cron", cfg.Server.CrawlCron), zap.String("forum", cfg.DefaultForum))
	}

	h := handler.New(cfg, threadRepo, relayRepo, stats, crawler, downloader, backfill, relay, jobManager)
	r := api.NewRouter(cfg, h)

	logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
	if err := r.Run(cfg.Server.Addr); err != nil {
		logger.Error("server exited", zap.Error(err))
	}
}

func accountsFromConfig(cfg *config.Config) []tieba.Account {
	var out []tieba.Account
	for i, a := range cfg.Accounts {
		label := a.Label
		if label == "" {
			label = fmt.Sprintf("account-%d", i+1)
		}
		out = append(out, tieba.Account{BDUSS: a.BDUSS, SToken: a.SToken, Label: label})
	}
	if len(out) == 0 && cfg.BDUSS != "" {
		out = append(out, tieba.Account{BDUSS: cfg.BDUSS, SToken: cfg.SToken, Label: "default"})
	}
	return out
}
