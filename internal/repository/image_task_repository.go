package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

type ImageTaskRepository interface {
	Upsert(ctx context.Context, img *model.ImageTask) error
	Claim(ctx context.Context, limit int, includeError bool) ([]model.ImageTask, error)
	Release(ctx context.Context, ids []uint) error
	ResetStuck(ctx context.Context) (int64, error)
	MarkDone(ctx context.Context, id uint, localPath string) error
	MarkError(ctx context.Context, id uint, errMsg string) error
	URLsForThread(ctx context.Context, tid int64, limit int) ([]string, error)
	Count(ctx context.Context, forum string) (int64, error)
}

type imageTaskRepository struct{ db *gorm.DB }

func NewImageTaskRepository(db *gorm.DB) ImageTaskRepository { return &imageTaskRepository{db: db} }

// Upsert (tid, url) 冲突时只刷新元数据，不触碰 status/local_path，
// 已 DONE 的任务不会被重置
func (r *imageTaskRepository) Upsert(ctx context.Context, img *model.ImageTask) error {
	img.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tid"}, {Name: "url"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"hash": gorm.Expr(
				"CASE WHEN excluded.hash != '' THEN excluded.hash ELSE images.hash END"),
			"origin_src": gorm.Expr(
				"CASE WHEN excluded.origin_src != '' THEN excluded.origin_src ELSE images.origin_src END"),
			"src": gorm.Expr(
				"CASE WHEN excluded.src != '' THEN excluded.src ELSE images.src END"),
			"big_src": gorm.Expr(
				"CASE WHEN excluded.big_src != '' THEN excluded.big_src ELSE images.big_src END"),
			"show_width": gorm.Expr(
				"CASE WHEN excluded.show_width > 0 THEN excluded.show_width ELSE images.show_width END"),
			"show_height": gorm.Expr(
				"CASE WHEN excluded.show_height > 0 THEN excluded.show_height ELSE images.show_height END"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(img).Error
}

// Claim 事务内圈定一批可领任务并置为 DOWNLOADING（attempts+1），
// 同一任务不会被两个并发领取者拿到
func (r *imageTaskRepository) Claim(ctx context.Context, limit int, includeError bool) ([]model.ImageTask, error) {
	statuses := []string{model.ImageStatusPending}
	if includeError {
		statuses = append(statuses, model.ImageStatusError)
	}

	var batch []model.ImageTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status IN ?", statuses).
			Order("id ASC").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]uint, len(batch))
		for i, t := range batch {
			ids[i] = t.ID
		}
		return tx.Model(&model.ImageTask{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     model.ImageStatusDownloading,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": time.Now(),
			}).Error
	})
	return batch, err
}

func (r *imageTaskRepository) Release(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.ImageTask{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": model.ImageStatusPending, "updated_at": time.Now()}).Error
}

// ResetStuck 上次进程崩溃遗留的 DOWNLOADING 任务归还队列
func (r *imageTaskRepository) ResetStuck(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.ImageTask{}).
		Where("status = ?", model.ImageStatusDownloading).
		Updates(map[string]interface{}{"status": model.ImageStatusPending, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *imageTaskRepository) MarkDone(ctx context.Context, id uint, localPath string) error {
	return r.db.WithContext(ctx).Model(&model.ImageTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.ImageStatusDone,
			"local_path": localPath,
			"last_error": "",
			"updated_at": time.Now(),
		}).Error
}

func (r *imageTaskRepository) MarkError(ctx context.Context, id uint, errMsg string) error {
	return r.db.WithContext(ctx).Model(&model.ImageTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.ImageStatusError,
			"last_error": truncateErr(errMsg),
			"updated_at": time.Now(),
		}).Error
}

// URLsForThread 某帖去重后的图片 URL，按入库顺序
func (r *imageTaskRepository) URLsForThread(ctx context.Context, tid int64, limit int) ([]string, error) {
	var tasks []model.ImageTask
	if err := r.db.WithContext(ctx).Where("tid = ?", tid).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tasks {
		if t.URL == "" {
			continue
		}
		if _, ok := seen[t.URL]; ok {
			continue
		}
		seen[t.URL] = struct{}{}
		out = append(out, t.URL)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *imageTaskRepository) Count(ctx context.Context, forum string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.ImageTask{})
	if forum != "" {
		q = q.Joins("JOIN threads ON threads.tid = images.tid").Where("threads.fname = ?", forum)
	}
	var cnt int64
	err := q.Count(&cnt).Error
	return cnt, err
}

func truncateErr(s string) string {
	const max = 1000
	if len(s) > max {
		return s[:max]
	}
	return s
}
