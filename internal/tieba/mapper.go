package tieba

import (
	"encoding/json"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
)

// contentsPayload 入库的 contents_json 结构
type contentsPayload struct {
	Text string            `json:"text"`
	Imgs []contentsImgItem `json:"imgs"`
}

type contentsImgItem struct {
	Src        string `json:"src,omitempty"`
	BigSrc     string `json:"big_src,omitempty"`
	OriginSrc  string `json:"origin_src,omitempty"`
	Hash       string `json:"hash,omitempty"`
	ShowWidth  int    `json:"show_width,omitempty"`
	ShowHeight int    `json:"show_height,omitempty"`
}

// ThreadToModel 协议帖 -> 存储行。标注字段一律置空，
// upsert 时不会覆盖已有人工/自动标注
func ThreadToModel(item ThreadItem) *model.Thread {
	payload := contentsPayload{Text: item.Text, Imgs: make([]contentsImgItem, 0, len(item.Images))}
	for _, img := range item.Images {
		payload.Imgs = append(payload.Imgs, contentsImgItem{
			Src:        img.Src,
			BigSrc:     img.BigSrc,
			OriginSrc:  img.OriginSrc,
			Hash:       img.Hash,
			ShowWidth:  img.ShowWidth,
			ShowHeight: img.ShowHeight,
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}

	return &model.Thread{
		Tid:        item.Tid,
		Fid:        item.Fid,
		Fname:      item.Fname,
		Title:      item.Title,
		AuthorID:   item.AuthorID,
		AuthorName: item.AuthorName,
		Agree:      item.Agree,
		Pid:        item.Pid,
		CreateTime: item.CreateTime,
		LastTime:   item.LastTime,
		ReplyNum:   item.ReplyNum,
		ViewNum:    item.ViewNum,
		IsTop:      item.IsTop,
		IsGood:     item.IsGood,
		IsHelp:     item.IsHelp,
		IsHide:     item.IsHide,
		IsShare:    item.IsShare,

		Text:         item.Text,
		ContentsJSON: string(raw),

		ProcessStatus: model.ProcessNew,
		ThreadRole:    model.RoleNormal,
	}
}

// ImageTasksFromThread 抽取帖内图片生成下载任务（(tid, url) 唯一）
func ImageTasksFromThread(item ThreadItem) []*model.ImageTask {
	var tasks []*model.ImageTask
	for _, img := range item.Images {
		u := img.CanonicalImageURL()
		if u == "" {
			continue
		}
		tasks = append(tasks, &model.ImageTask{
			Tid:        item.Tid,
			URL:        u,
			Hash:       img.Hash,
			OriginSrc:  img.OriginSrc,
			Src:        img.Src,
			BigSrc:     img.BigSrc,
			ShowWidth:  img.ShowWidth,
			ShowHeight: img.ShowHeight,
			Status:     model.ImageStatusPending,
		})
	}
	return tasks
}
