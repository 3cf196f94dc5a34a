package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/internal/tieba"
	"github.com/d60-Lab/tieba-pipeline/pkg/logger"
)

// 每帖之间在最小间隔上再加的随机抖动上限
const postJitterMax = 10 * time.Second

// Relay 两阶段转发管线：
// A 入队——已标注普通帖匹配到同周合集帖则生成任务（幂等）；
// B 排空——恢复悬挂任务、领取、构建内容、串行限速回帖。
// 回帖绝不并行：目标平台惩罚突发流量
type Relay struct {
	threadRepo repository.ThreadRepository
	relayRepo  repository.RelayTaskRepository
	imageRepo  repository.ImageTaskRepository
	client     tieba.Client
	pool       *tieba.AccountPool
	tz         *time.Location

	// dry-run 输出目的地，测试可替换
	Out io.Writer
}

func NewRelay(
	threadRepo repository.ThreadRepository,
	relayRepo repository.RelayTaskRepository,
	imageRepo repository.ImageTaskRepository,
	client tieba.Client,
	pool *tieba.AccountPool,
	tz *time.Location,
) *Relay {
	if tz == nil {
		tz = time.UTC
	}
	return &Relay{
		threadRepo: threadRepo,
		relayRepo:  relayRepo,
		imageRepo:  imageRepo,
		client:     client,
		pool:       pool,
		tz:         tz,
		Out:        os.Stdout,
	}
}

type RelayParams struct {
	Forum        string
	Category     string
	IncludeError bool
	DryRun       bool

	Mode               string
	MaxPosts           int
	MinIntervalSeconds int
	MaxTextChars       int
	MaxImages          int
	LookbackDays       int
}

type RelayResult struct {
	Candidates    int   `json:"candidates"`
	Enqueued      int   `json:"enqueued"`
	MissingTarget int   `json:"missing_target"`
	StuckReset    int64 `json:"stuck_reset"`
	Claimed       int   `json:"claimed"`
	Posted        int   `json:"posted"`
	Skipped       int   `json:"skipped"`
	Failed        int   `json:"failed"`
	Unknown       int   `json:"unknown"`
	Released      int   `json:"released"`
	DryRun        bool  `json:"dry_run"`
}

func (r *Relay) Run(ctx context.Context, p RelayParams) (RelayResult, error) {
	res := RelayResult{DryRun: p.DryRun}

	if p.Mode != "link" && p.Mode != "full" {
		return res, fmt.Errorf("relay mode must be link or full, got %q", p.Mode)
	}
	if !p.DryRun && !r.pool.HasAuthenticated() {
		return res, errors.New("posting requires an authenticated account (not needed for dry-run)")
	}

	// 上一进程崩溃时悬挂在 POSTING 的任务先归还队列
	reset, err := r.relayRepo.ResetStuck(ctx)
	if err != nil {
		return res, err
	}
	res.StuckReset = reset
	if reset > 0 {
		logger.Warn("reset stuck relay tasks", zap.Int64("count", reset))
	}

	if err := r.enqueue(ctx, p, &res); err != nil {
		return res, err
	}

	tasks, err := r.relayRepo.Claim(ctx, p.MaxPosts, p.IncludeError, p.Category)
	if err != nil {
		return res, err
	}
	res.Claimed = len(tasks)
	if len(tasks) == 0 {
		logger.Info("no relay tasks to post")
		return res, nil
	}

	if p.DryRun {
		return res, r.dryRun(ctx, p, tasks, &res)
	}
	return res, r.drain(ctx, p, tasks, &res)
}

// enqueue 阶段 A：窗口内已标注普通帖 × 同 (吧,类目,年,周) 合集帖 -> 任务。
// 合集帖还不存在时不算错误，留待下一轮
func (r *Relay) enqueue(ctx context.Context, p RelayParams, res *RelayResult) error {
	sinceTS := time.Now().Unix() - int64(p.LookbackDays)*86400
	candidates, err := r.threadRepo.RelayCandidates(ctx, p.Forum, sinceTS, p.Category, 5000)
	if err != nil {
		return err
	}
	res.Candidates = len(candidates)

	for _, th := range candidates {
		if th.Category == nil || *th.Category == "" {
			continue
		}
		y, w := time.Unix(th.CreateTime, 0).In(r.tz).ISOWeek()

		target, err := r.threadRepo.FindCollectionThread(ctx, p.Forum, *th.Category, y, w)
		if err != nil {
			return err
		}
		if target == nil {
			res.MissingTarget++
			continue
		}

		inserted, err := r.relayRepo.Insert(ctx, &model.RelayTask{
			SourceTid:   th.Tid,
			TargetTid:   target.Tid,
			TargetForum: target.Fname,
			Category:    *th.Category,
			SourceYear:  y,
			SourceWeek:  w,
		})
		if err != nil {
			return err
		}
		if inserted {
			res.Enqueued++
		}
	}

	logger.Info("relay enqueue done",
		zap.String("forum", p.Forum), zap.String("category", p.Category),
		zap.Int("candidates", res.Candidates), zap.Int("enqueued", res.Enqueued),
		zap.Int("missing_target", res.MissingTarget), zap.Int("lookback_days", p.LookbackDays))
	return nil
}

func (r *Relay) buildContent(ctx context.Context, p RelayParams, t repository.ClaimedRelayTask) (string, error) {
	var imgs []string
	if p.Mode == "full" && p.MaxImages > 0 {
		var err error
		imgs, err = r.imageRepo.URLsForThread(ctx, t.SourceTid, p.MaxImages)
		if err != nil {
			return "", err
		}
	}
	return BuildReplyContent(ReplyInput{
		SourceTid:    t.SourceTid,
		Title:        t.Title,
		AuthorName:   t.AuthorName,
		AuthorID:     t.AuthorID,
		CreateTime:   t.CreateTime,
		Text:         t.Text,
		ImageURLs:    imgs,
		Mode:         p.Mode,
		MaxTextChars: p.MaxTextChars,
		MaxImages:    p.MaxImages,
		TZ:           r.tz,
	}), nil
}

// dryRun 打印每条将发内容后整批退回 PENDING，不产生任何终态
func (r *Relay) dryRun(ctx context.Context, p RelayParams, tasks []repository.ClaimedRelayTask, res *RelayResult) error {
	logger.Warn("dry run: printing tasks then releasing", zap.Int("tasks", len(tasks)))
	ids := make([]uint, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		content, err := r.buildContent(ctx, p, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "\n%s\n", strings.Repeat("-", 60))
		fmt.Fprintf(r.Out, "TARGET: %s tid=%d (category=%s)\n", t.TargetForum, t.TargetTid, t.Category)
		fmt.Fprintln(r.Out, content)
	}
	if err := r.relayRepo.Release(ctx, ids); err != nil {
		return err
	}
	res.Released = len(ids)
	return nil
}

// drain 阶段 B：串行回帖。单帖失败不中止批次；
// 超时结果不明，记 UNKNOWN，绝不自动重试
func (r *Relay) drain(ctx context.Context, p RelayParams, tasks []repository.ClaimedRelayTask, res *RelayResult) error {
	for idx, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		content, err := r.buildContent(ctx, p, t)
		if err != nil {
			return err
		}
		if strings.TrimSpace(content) == "" {
			if err := r.relayRepo.MarkSkipped(ctx, t.ID, "empty content after formatting"); err != nil {
				return err
			}
			res.Skipped++
			continue
		}

		result, err := r.client.AddPost(ctx, t.TargetForum, t.TargetTid, content)
		switch {
		case errors.Is(err, tieba.ErrOutcomeUnknown):
			if err := r.relayRepo.MarkUnknown(ctx, t.ID, err.Error()); err != nil {
				return err
			}
			res.Unknown++
			logger.Warn("relay post timeout, outcome unknown",
				zap.Uint("task_id", t.ID), zap.Int64("source_tid", t.SourceTid), zap.Int64("target_tid", t.TargetTid))
		case err != nil:
			if err := r.relayRepo.MarkError(ctx, t.ID, err.Error()); err != nil {
				return err
			}
			res.Failed++
			logger.Warn("relay post failed",
				zap.Uint("task_id", t.ID), zap.Int64("source_tid", t.SourceTid), zap.Error(err))
		case !result.OK:
			detail := fmt.Sprintf("add_post returned not-ok: code=%d msg=%s", result.Code, result.Msg)
			if err := r.relayRepo.MarkError(ctx, t.ID, detail); err != nil {
				return err
			}
			res.Failed++
			logger.Warn("relay post rejected",
				zap.Uint("task_id", t.ID), zap.Int64("source_tid", t.SourceTid), zap.String("detail", detail))
		default:
			if err := r.relayRepo.MarkDone(ctx, t.ID); err != nil {
				return err
			}
			res.Posted++
			logger.Info("relay posted",
				zap.Uint("task_id", t.ID), zap.Int64("source_tid", t.SourceTid), zap.Int64("target_tid", t.TargetTid))
		}

		if idx < len(tasks)-1 {
			if err := r.postSleep(ctx, p.MinIntervalSeconds); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Relay) postSleep(ctx context.Context, minIntervalSeconds int) error {
	d := time.Duration(minIntervalSeconds)*time.Second + time.Duration(rand.Int63n(int64(postJitterMax)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
