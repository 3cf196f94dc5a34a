package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

const statsCacheKey = "tieba:stats"

// Stats 语料总览。仪表盘轮询该接口，
// 配置了 redis 时走 cache-aside + TTL，未配置则每次现算
type Stats struct {
	threadRepo repository.ThreadRepository
	imageRepo  repository.ImageTaskRepository
	relayRepo  repository.RelayTaskRepository

	cache *redis.Client // 可为 nil
	ttl   time.Duration
	forum string
}

func NewStats(
	threadRepo repository.ThreadRepository,
	imageRepo repository.ImageTaskRepository,
	relayRepo repository.RelayTaskRepository,
	cache *redis.Client,
	ttl time.Duration,
	defaultForum string,
) *Stats {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Stats{
		threadRepo: threadRepo,
		imageRepo:  imageRepo,
		relayRepo:  relayRepo,
		cache:      cache,
		ttl:        ttl,
		forum:      defaultForum,
	}
}

type StatsSnapshot struct {
	Forum              string           `json:"forum,omitempty"`
	ThreadsTotal       int64            `json:"threads_total"`
	ImagesTotal        int64            `json:"images_total"`
	RelayTasksByStatus map[string]int64 `json:"relay_tasks_by_status"`
	ThreadsByCategory  map[string]int64 `json:"threads_by_category"`
}

func (s *Stats) Snapshot(ctx context.Context) (*StatsSnapshot, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var snap StatsSnapshot
			if json.Unmarshal(raw, &snap) == nil {
				return &snap, nil
			}
		}
	}

	snap, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, raw, s.ttl).Err(); err != nil {
				logger.Warn("stats cache set failed", zap.Error(err))
			}
		}
	}
	return snap, nil
}

func (s *Stats) compute(ctx context.Context) (*StatsSnapshot, error) {
	threads, err := s.threadRepo.Count(ctx, s.forum)
	if err != nil {
		return nil, err
	}
	images, err := s.imageRepo.Count(ctx, s.forum)
	if err != nil {
		return nil, err
	}
	relayByStatus, err := s.relayRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.threadRepo.CountByCategory(ctx, s.forum)
	if err != nil {
		return nil, err
	}
	return &StatsSnapshot{
		Forum:              s.forum,
		ThreadsTotal:       threads,
		ImagesTotal:        images,
		RelayTasksByStatus: relayByStatus,
		ThreadsByCategory:  byCategory,
	}, nil
}
