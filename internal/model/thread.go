package model

import "time"

// 帖子角色：normal 普通帖；collection 周合集帖（只升不降）
const (
	RoleNormal     = "normal"
	RoleCollection = "collection"
)

// 处理状态
const (
	ProcessNew       = "new"
	ProcessFetched   = "fetched"
	ProcessProcessed = "processed"
)

// Thread 帖子主体。协议字段每次抓取覆盖；
// 标注字段（category/tags_json/ai_reply_content/process_status/collection_*）
// 仅当新值非空时覆盖，见 ThreadRepository.Upsert
type Thread struct {
	Tid        int64  `gorm:"primaryKey;autoIncrement:false"`
	Fid        int64  `gorm:"not null;default:0"`
	Fname      string `gorm:"type:varchar(64);index:idx_thread_forum_ctime;not null"`
	Title      string `gorm:"type:text"`
	AuthorID   int64  `gorm:"not null;default:0"`
	AuthorName string `gorm:"type:varchar(128)"`

	Agree int64 `gorm:"not null;default:0"`
	Pid   int64 `gorm:"not null;default:0"`

	CreateTime int64 `gorm:"index:idx_thread_forum_ctime;not null;default:0"`
	LastTime   int64 `gorm:"not null;default:0"`
	ReplyNum   int64 `gorm:"not null;default:0"`
	ViewNum    int64 `gorm:"not null;default:0"`

	IsTop   bool `gorm:"not null;default:false"`
	IsGood  bool `gorm:"not null;default:false"`
	IsHelp  bool `gorm:"not null;default:false"`
	IsHide  bool `gorm:"not null;default:false"`
	IsShare bool `gorm:"not null;default:false"`

	Text         string `gorm:"type:text"`
	ContentsJSON string `gorm:"column:contents_json;type:text"`

	AIReplyContent *string `gorm:"column:ai_reply_content;type:text"`
	ProcessStatus  string  `gorm:"type:varchar(16);not null;default:'new'"`

	Category       *string `gorm:"type:varchar(64);index"`
	TagsJSON       *string `gorm:"column:tags_json;type:text"`
	ThreadRole     string  `gorm:"type:varchar(16);not null;default:'normal';index"`
	CollectionYear *int    `gorm:"index:idx_thread_collection"`
	CollectionWeek *int    `gorm:"index:idx_thread_collection"`

	UpdatedAt time.Time
}

func (Thread) TableName() string { return "threads" }
