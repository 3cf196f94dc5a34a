package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/config"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// Backfill 不重抓、只扫库：对已入库帖子的标题重跑合集检测并回填标记。
// 用于升级前就已存在周合集帖的库
type Backfill struct {
	threadRepo repository.ThreadRepository
	rules      []config.CategoryRule
}

func NewBackfill(threadRepo repository.ThreadRepository, rules []config.CategoryRule) *Backfill {
	return &Backfill{threadRepo: threadRepo, rules: rules}
}

type BackfillParams struct {
	Forum  string
	Days   int
	DryRun bool
}

type BackfillResult struct {
	Scanned int  `json:"scanned"`
	Updated int  `json:"updated"`
	DryRun  bool `json:"dry_run"`
}

func (b *Backfill) Run(ctx context.Context, p BackfillParams) (BackfillResult, error) {
	res := BackfillResult{DryRun: p.DryRun}
	if p.Days <= 0 {
		p.Days = 120
	}
	sinceTS := time.Now().Unix() - int64(p.Days)*86400

	rows, err := b.threadRepo.ListRecent(ctx, p.Forum, sinceTS)
	if err != nil {
		return res, err
	}
	res.Scanned = len(rows)

	for _, th := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d := DetectCollection(th.Title, b.rules)
		if !d.IsCollection {
			continue
		}
		if p.DryRun {
			logger.Info("[dry] would mark collection",
				zap.Int64("tid", th.Tid), zap.String("category", d.Category),
				zap.Int("year", d.Year), zap.Int("week", d.Week), zap.String("title", th.Title))
			res.Updated++
			continue
		}
		if err := b.threadRepo.MarkAsCollection(ctx, th.Tid, d.Category, d.Year, d.Week); err != nil {
			return res, err
		}
		res.Updated++
	}

	logger.Info("backfill done",
		zap.String("forum", p.Forum), zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated), zap.Bool("dry_run", p.DryRun))
	return res, nil
}
