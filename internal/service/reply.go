package service

import (
	"fmt"
	"strings"
	"time"
)

// 回帖内容硬上限（目标平台单帖长度限制）
const replyHardLimit = 1800

// ReplyInput 回帖内容构建入参
type ReplyInput struct {
	SourceTid  int64
	Title      string
	AuthorName string
	AuthorID   int64
	CreateTime int64
	Text       string
	ImageURLs  []string

	Mode         string // link | full
	MaxTextChars int
	MaxImages    int
	TZ           *time.Location
}

// BuildReplyContent 纯函数，输入相同则输出逐字节相同（dry-run 校验依赖此性质）。
// 固定头部 + 按 mode 组装正文，最终硬截断到 1800 字符
func BuildReplyContent(in ReplyInput) string {
	link := fmt.Sprintf("https://tieba.baidu.com/p/%d", in.SourceTid)
	author := strings.TrimSpace(in.AuthorName)
	if author == "" {
		author = fmt.Sprintf("uid:%d", in.AuthorID)
	}

	var b strings.Builder
	b.WriteString("【新帖收录】" + strings.TrimSpace(in.Title) + "\n")
	b.WriteString("作者：" + author + "\n")
	b.WriteString(fmt.Sprintf("作者ID：%d\n", in.AuthorID))
	b.WriteString("时间：" + formatTS(in.CreateTime, in.TZ) + "\n")
	b.WriteString("原帖链接：" + link + "\n")
	b.WriteString(fmt.Sprintf("帖子ID：%d\n", in.SourceTid))

	text := strings.TrimSpace(in.Text)
	if in.Mode == "full" {
		if text != "" {
			b.WriteString("\n正文摘录：\n" + truncateRunes(text, in.MaxTextChars))
		}
		if len(in.ImageURLs) > 0 && in.MaxImages > 0 {
			imgs := in.ImageURLs
			if len(imgs) > in.MaxImages {
				imgs = imgs[:in.MaxImages]
			}
			b.WriteString("\n图片链接：\n" + strings.Join(imgs, "\n"))
		}
	} else {
		// link 模式：短摘要
		if text != "" {
			limit := in.MaxTextChars
			if limit > 120 {
				limit = 120
			}
			b.WriteString("\n摘要：\n" + truncateRunes(text, limit))
		}
	}

	out := strings.TrimSpace(b.String())
	if r := []rune(out); len(r) > replyHardLimit {
		out = string(r[:replyHardLimit])
	}
	return out
}

func formatTS(ts int64, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	return time.Unix(ts, 0).In(tz).Format("2006-01-02 15:04:05")
}

// truncateRunes 按字符截断，超出加省略号（正文多为 CJK，不能按字节切）
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
