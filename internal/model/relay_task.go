package model

import "time"

// 转发任务状态。UNKNOWN：发帖超时，结果不明，需人工核对后处理，
// 不参与 include_error 重领
const (
	RelayStatusPending = "PENDING"
	RelayStatusPosting = "POSTING"
	RelayStatusDone    = "DONE"
	RelayStatusError   = "ERROR"
	RelayStatusSkipped = "SKIPPED"
	RelayStatusUnknown = "UNKNOWN"
)

// RelayTask 「把源帖 X 摘要回复到合集帖 Y」的一次任务，
// (source_tid, target_tid) 唯一，重复入队为 no-op
type RelayTask struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SourceTid   int64  `gorm:"index:idx_relay_pair,unique;not null"`
	TargetTid   int64  `gorm:"index:idx_relay_pair,unique;not null"`
	TargetForum string `gorm:"type:varchar(64);not null"`

	Category   string `gorm:"type:varchar(64);index"`
	SourceYear int    `gorm:"not null;default:0"`
	SourceWeek int    `gorm:"not null;default:0"`

	Status    string `gorm:"type:varchar(16);not null;default:'PENDING';index"`
	Attempts  int    `gorm:"not null;default:0"`
	LastError string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RelayTask) TableName() string { return "relay_tasks" }
