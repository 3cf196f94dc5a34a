package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

type ForumStateRepository interface {
	Get(ctx context.Context, forum string) (*model.ForumState, error)
	Set(ctx context.Context, forum string, lastCrawlTS int64) error
}

type forumStateRepository struct{ db *gorm.DB }

func NewForumStateRepository(db *gorm.DB) ForumStateRepository { return &forumStateRepository{db: db} }

// Get 返回吧水位；不存在返回 (nil, nil)
func (r *forumStateRepository) Get(ctx context.Context, forum string) (*model.ForumState, error) {
	var s model.ForumState
	err := r.db.WithContext(ctx).Where("forum = ?", forum).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *forumStateRepository) Set(ctx context.Context, forum string, lastCrawlTS int64) error {
	s := &model.ForumState{Forum: forum, LastCrawlTS: lastCrawlTS, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "forum"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_crawl_ts", "updated_at"}),
	}).Create(s).Error
}
