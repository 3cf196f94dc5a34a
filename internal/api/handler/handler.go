package handler

import (
	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/jobs"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/service"
)

// Handler API 处理器集合（薄层：只做参数校验与路由）
type Handler struct {
	cfg *config.Config

	threadRepo repository.ThreadRepository
	relayRepo  repository.RelayTaskRepository

	stats      *service.Stats
	crawler    *service.Crawler
	downloader *service.Downloader
	backfill   *service.Backfill
	relay      *service.Relay

	jobs *jobs.Manager
}

func New(
	cfg *config.Config,
	threadRepo repository.ThreadRepository,
	relayRepo repository.RelayTaskRepository,
	stats *service.Stats,
	crawler *service.Crawler,
	downloader *service.Downloader,
	backfill *service.Backfill,
	relay *service.Relay,
	jobManager *jobs.Manager,
) *Handler {
	return &Handler{
		cfg:        cfg,
		threadRepo: threadRepo,
		relayRepo:  relayRepo,
		stats:      stats,
		crawler:    crawler,
		downloader: downloader,
		backfill:   backfill,
		relay:      relay,
		jobs:       jobManager,
	}
}
