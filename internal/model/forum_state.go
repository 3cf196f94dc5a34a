package model

import "time"

// ForumState 吧级增量水位（每吧一行）
// LastCrawlTS 在成功抓取后单调不减
type ForumState struct {
	Forum       string `gorm:"primaryKey;type:varchar(64)"`
	LastCrawlTS int64  `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}

func (ForumState) TableName() string { return "forum_state" }
