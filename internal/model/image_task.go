package model

import "time"

// 图片任务状态
const (
	ImageStatusPending     = "PENDING"
	ImageStatusDownloading = "DOWNLOADING"
	ImageStatusDone        = "DONE"
	ImageStatusError       = "ERROR"
)

// ImageTask 图片下载任务，(tid, url) 唯一。
// 一旦 DONE，local_path 不再变更，重复 upsert 不回退状态
type ImageTask struct {
	ID  uint   `gorm:"primaryKey;autoIncrement"`
	Tid int64  `gorm:"index:idx_image_tid_url,unique;not null"`
	URL string `gorm:"type:varchar(512);index:idx_image_tid_url,unique;not null"`

	Hash      string `gorm:"type:varchar(64)"`
	OriginSrc string `gorm:"type:varchar(512)"`
	Src       string `gorm:"type:varchar(512)"`
	BigSrc    string `gorm:"type:varchar(512)"`

	ShowWidth  int `gorm:"not null;default:0"`
	ShowHeight int `gorm:"not null;default:0"`

	Status    string `gorm:"type:varchar(16);not null;default:'PENDING';index"`
	Attempts  int    `gorm:"not null;default:0"`
	LocalPath string `gorm:"type:varchar(512)"`
	LastError string `gorm:"type:text"`

	UpdatedAt time.Time
}

func (ImageTask) TableName() string { return "images" }
