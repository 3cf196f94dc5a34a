package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

// ClaimedRelayTask 领取结果：任务行 + 源帖快照（构建回复用）
type ClaimedRelayTask struct {
	ID          uint
	SourceTid   int64
	TargetTid   int64
	TargetForum string
	Category    string
	SourceYear  int
	SourceWeek  int
	Attempts    int

	SourceForum string
	Title       string
	AuthorID    int64
	AuthorName  string
	CreateTime  int64
	Text        string
}

// RelayTaskFilter 列表查询条件（API 用）
type RelayTaskFilter struct {
	Status   string
	Category string
	Limit    int
	Offset   int
}

type RelayTaskRepository interface {
	Insert(ctx context.Context, t *model.RelayTask) (bool, error)
	Claim(ctx context.Context, limit int, includeError bool, category string) ([]ClaimedRelayTask, error)
	Release(ctx context.Context, ids []uint) error
	ResetStuck(ctx context.Context) (int64, error)
	MarkDone(ctx context.Context, id uint) error
	MarkError(ctx context.Context, id uint, errMsg string) error
	MarkSkipped(ctx context.Context, id uint, reason string) error
	MarkUnknown(ctx context.Context, id uint, detail string) error
	List(ctx context.Context, f RelayTaskFilter) ([]model.RelayTask, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type relayTaskRepository struct{ db *gorm.DB }

func NewRelayTaskRepository(db *gorm.DB) RelayTaskRepository { return &relayTaskRepository{db: db} }

// Insert 幂等入队：(source_tid, target_tid) 已存在则 no-op，返回是否新插入
func (r *relayTaskRepository) Insert(ctx context.Context, t *model.RelayTask) (bool, error) {
	now := time.Now()
	if t.Status == "" {
		t.Status = model.RelayStatusPending
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Claim 事务内按源帖发帖时间升序圈定一批任务，置为 POSTING 并 attempts+1。
// 排序取自 threads 联表，保证“最老的源帖先发”
func (r *relayTaskRepository) Claim(ctx context.Context, limit int, includeError bool, category string) ([]ClaimedRelayTask, error) {
	statuses := []string{model.RelayStatusPending}
	if includeError {
		statuses = append(statuses, model.RelayStatusError)
	}

	var batch []ClaimedRelayTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Table("relay_tasks AS rt").
			Select(`rt.id, rt.source_tid, rt.target_tid, rt.target_forum, rt.category,
				rt.source_year, rt.source_week, rt.attempts,
				th.fname AS source_forum, th.title, th.author_id, th.author_name,
				th.create_time, th.text`).
			Joins("JOIN threads th ON th.tid = rt.source_tid").
			Where("rt.status IN ?", statuses)
		if category != "" {
			q = q.Where("rt.category = ?", category)
		}
		if err := q.Order("th.create_time ASC").Limit(limit).Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]uint, len(batch))
		for i, t := range batch {
			ids[i] = t.ID
		}
		return tx.Model(&model.RelayTask{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     model.RelayStatusPosting,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": time.Now(),
			}).Error
	})
	return batch, err
}

// Release dry-run 结束后把整批任务退回 PENDING
func (r *relayTaskRepository) Release(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.RelayTask{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": model.RelayStatusPending, "updated_at": time.Now()}).Error
}

// ResetStuck 上次进程崩溃遗留的 POSTING 任务归还队列
func (r *relayTaskRepository) ResetStuck(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.RelayTask{}).
		Where("status = ?", model.RelayStatusPosting).
		Updates(map[string]interface{}{"status": model.RelayStatusPending, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *relayTaskRepository) MarkDone(ctx context.Context, id uint) error {
	return r.setTerminal(ctx, id, model.RelayStatusDone, "")
}

func (r *relayTaskRepository) MarkError(ctx context.Context, id uint, errMsg string) error {
	return r.setTerminal(ctx, id, model.RelayStatusError, errMsg)
}

func (r *relayTaskRepository) MarkSkipped(ctx context.Context, id uint, reason string) error {
	return r.setTerminal(ctx, id, model.RelayStatusSkipped, reason)
}

// MarkUnknown 发帖超时：可能已发出，不可自动重试，留待人工核对
func (r *relayTaskRepository) MarkUnknown(ctx context.Context, id uint, detail string) error {
	return r.setTerminal(ctx, id, model.RelayStatusUnknown, detail)
}

func (r *relayTaskRepository) setTerminal(ctx context.Context, id uint, status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&model.RelayTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": truncateErr(errMsg),
			"updated_at": time.Now(),
		}).Error
}

func (r *relayTaskRepository) List(ctx context.Context, f RelayTaskFilter) ([]model.RelayTask, error) {
	q := r.db.WithContext(ctx).Model(&model.RelayTask{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var res []model.RelayTask
	err := q.Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&res).Error
	return res, err
}

func (r *relayTaskRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		C      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&model.RelayTask{}).
		Select("status, COUNT(1) AS c").Group("status").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.C
	}
	return out, nil
}
