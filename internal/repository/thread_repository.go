package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

// ThreadFilter 列表查询条件（API 用）
type ThreadFilter struct {
	Forum    string
	Category string
	Role     string
	Status   string
	Query    string // 标题/正文子串
	SinceTS  int64
	UntilTS  int64
	Limit    int
	Offset   int
}

type ThreadRepository interface {
	Upsert(ctx context.Context, t *model.Thread) error
	Get(ctx context.Context, tid int64) (*model.Thread, error)
	SetCategory(ctx context.Context, tid int64, category string, tagsJSON *string) error
	SetProcessStatus(ctx context.Context, tid int64, status string) error
	MarkAsCollection(ctx context.Context, tid int64, category string, year, week int) error
	FindCollectionThread(ctx context.Context, forum, category string, year, week int) (*model.Thread, error)
	RelayCandidates(ctx context.Context, forum string, sinceTS int64, category string, limit int) ([]*model.Thread, error)
	ListRecent(ctx context.Context, forum string, sinceTS int64) ([]*model.Thread, error)
	List(ctx context.Context, f ThreadFilter) ([]*model.Thread, error)
	Count(ctx context.Context, forum string) (int64, error)
	CountByCategory(ctx context.Context, forum string) (map[string]int64, error)
}

type threadRepository struct{ db *gorm.DB }

func NewThreadRepository(db *gorm.DB) ThreadRepository { return &threadRepository{db: db} }

// Upsert 帖子插入/更新。协议字段直接覆盖；
// 标注字段只在新值非空时覆盖；thread_role 只允许 normal -> collection
func (r *threadRepository) Upsert(ctx context.Context, t *model.Thread) error {
	t.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"fid":           gorm.Expr("excluded.fid"),
			"fname":         gorm.Expr("excluded.fname"),
			"title":         gorm.Expr("excluded.title"),
			"author_id":     gorm.Expr("excluded.author_id"),
			"author_name":   gorm.Expr("excluded.author_name"),
			"agree":         gorm.Expr("excluded.agree"),
			"pid":           gorm.Expr("excluded.pid"),
			"create_time":   gorm.Expr("excluded.create_time"),
			"last_time":     gorm.Expr("excluded.last_time"),
			"reply_num":     gorm.Expr("excluded.reply_num"),
			"view_num":      gorm.Expr("excluded.view_num"),
			"is_top":        gorm.Expr("excluded.is_top"),
			"is_good":       gorm.Expr("excluded.is_good"),
			"is_help":       gorm.Expr("excluded.is_help"),
			"is_hide":       gorm.Expr("excluded.is_hide"),
			"is_share":      gorm.Expr("excluded.is_share"),
			"text":          gorm.Expr("excluded.text"),
			"contents_json": gorm.Expr("excluded.contents_json"),

			"ai_reply_content": gorm.Expr("COALESCE(excluded.ai_reply_content, threads.ai_reply_content)"),
			"process_status": gorm.Expr(
				"CASE WHEN excluded.process_status IS NOT NULL AND excluded.process_status != '' " +
					"THEN excluded.process_status ELSE threads.process_status END"),
			"category": gorm.Expr(
				"CASE WHEN excluded.category IS NOT NULL AND excluded.category != '' " +
					"THEN excluded.category ELSE threads.category END"),
			"tags_json": gorm.Expr(
				"CASE WHEN excluded.tags_json IS NOT NULL AND excluded.tags_json != '' " +
					"THEN excluded.tags_json ELSE threads.tags_json END"),
			"thread_role": gorm.Expr(
				"CASE WHEN excluded.thread_role = 'collection' THEN 'collection' ELSE threads.thread_role END"),
			"collection_year": gorm.Expr("COALESCE(excluded.collection_year, threads.collection_year)"),
			"collection_week": gorm.Expr("COALESCE(excluded.collection_week, threads.collection_week)"),

			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(t).Error
}

func (r *threadRepository) Get(ctx context.Context, tid int64) (*model.Thread, error) {
	var t model.Thread
	err := r.db.WithContext(ctx).Where("tid = ?", tid).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *threadRepository) SetCategory(ctx context.Context, tid int64, category string, tagsJSON *string) error {
	updates := map[string]interface{}{
		"category":   category,
		"updated_at": time.Now(),
	}
	if tagsJSON != nil {
		updates["tags_json"] = *tagsJSON
	}
	return r.db.WithContext(ctx).Model(&model.Thread{}).Where("tid = ?", tid).Updates(updates).Error
}

func (r *threadRepository) SetProcessStatus(ctx context.Context, tid int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Thread{}).Where("tid = ?", tid).
		Updates(map[string]interface{}{"process_status": status, "updated_at": time.Now()}).Error
}

func (r *threadRepository) MarkAsCollection(ctx context.Context, tid int64, category string, year, week int) error {
	return r.db.WithContext(ctx).Model(&model.Thread{}).Where("tid = ?", tid).
		Updates(map[string]interface{}{
			"thread_role":     model.RoleCollection,
			"category":        category,
			"collection_year": year,
			"collection_week": week,
			"updated_at":      time.Now(),
		}).Error
}

// FindCollectionThread 找 (吧, 类目, 年, 周) 对应的合集帖，同周多帖取最新
func (r *threadRepository) FindCollectionThread(ctx context.Context, forum, category string, year, week int) (*model.Thread, error) {
	var t model.Thread
	err := r.db.WithContext(ctx).
		Where("fname = ? AND thread_role = ? AND category = ? AND collection_year = ? AND collection_week = ?",
			forum, model.RoleCollection, category, year, week).
		Order("create_time DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RelayCandidates 待转发候选：普通帖、有类目、窗口内，按发帖时间升序
func (r *threadRepository) RelayCandidates(ctx context.Context, forum string, sinceTS int64, category string, limit int) ([]*model.Thread, error) {
	if limit <= 0 {
		limit = 2000
	}
	q := r.db.WithContext(ctx).
		Where("fname = ? AND create_time >= ? AND thread_role != ?", forum, sinceTS, model.RoleCollection).
		Where("category IS NOT NULL AND category != ''")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var res []*model.Thread
	err := q.Order("create_time ASC").Limit(limit).Find(&res).Error
	return res, err
}

// ListRecent 回填扫描用：某吧窗口内全部帖子，按发帖时间降序
func (r *threadRepository) ListRecent(ctx context.Context, forum string, sinceTS int64) ([]*model.Thread, error) {
	var res []*model.Thread
	err := r.db.WithContext(ctx).
		Where("fname = ? AND create_time >= ?", forum, sinceTS).
		Order("create_time DESC").
		Find(&res).Error
	return res, err
}

func (r *threadRepository) List(ctx context.Context, f ThreadFilter) ([]*model.Thread, error) {
	q := r.db.WithContext(ctx).Model(&model.Thread{})
	if f.Forum != "" {
		q = q.Where("fname = ?", f.Forum)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Role != "" {
		q = q.Where("thread_role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("process_status = ?", f.Status)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		q = q.Where("title LIKE ? OR text LIKE ?", like, like)
	}
	if f.SinceTS > 0 {
		q = q.Where("create_time >= ?", f.SinceTS)
	}
	if f.UntilTS > 0 {
		q = q.Where("create_time <= ?", f.UntilTS)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var res []*model.Thread
	err := q.Order("create_time DESC").Limit(f.Limit).Offset(f.Offset).Find(&res).Error
	return res, err
}

func (r *threadRepository) Count(ctx context.Context, forum string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Thread{})
	if forum != "" {
		q = q.Where("fname = ?", forum)
	}
	var cnt int64
	err := q.Count(&cnt).Error
	return cnt, err
}

func (r *threadRepository) CountByCategory(ctx context.Context, forum string) (map[string]int64, error) {
	type row struct {
		Category string
		C        int64
	}
	q := r.db.WithContext(ctx).Model(&model.Thread{}).
		Select("category, COUNT(1) AS c").
		Where("category IS NOT NULL AND category != ''")
	if forum != "" {
		q = q.Where("fname = ?", forum)
	}
	var rows []row
	if err := q.Group("category").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Category] = r.C
	}
	return out, nil
}
