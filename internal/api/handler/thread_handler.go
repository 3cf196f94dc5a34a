package handler

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tieba-pipeline/internal/model"
	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/pkg/response"
)

type threadItem struct {
	Tid            int64    `json:"tid"`
	Fname          string   `json:"fname"`
	Title          string   `json:"title"`
	AuthorID       int64    `json:"author_id"`
	AuthorName     string   `json:"author_name"`
	CreateTime     int64    `json:"create_time"`
	LastTime       int64    `json:"last_time"`
	ReplyNum       int64    `json:"reply_num"`
	ViewNum        int64    `json:"view_num"`
	IsTop          bool     `json:"is_top"`
	IsGood         bool     `json:"is_good"`
	Category       *string  `json:"category"`
	Tags           []string `json:"tags,omitempty"`
	ThreadRole     string   `json:"thread_role"`
	ProcessStatus  string   `json:"process_status"`
	CollectionYear *int     `json:"collection_year,omitempty"`
	CollectionWeek *int     `json:"collection_week,omitempty"`
}

func toThreadItem(t *model.Thread) threadItem {
	item := threadItem{
		Tid:            t.Tid,
		Fname:          t.Fname,
		Title:          t.Title,
		AuthorID:       t.AuthorID,
		AuthorName:     t.AuthorName,
		CreateTime:     t.CreateTime,
		LastTime:       t.LastTime,
		ReplyNum:       t.ReplyNum,
		ViewNum:        t.ViewNum,
		IsTop:          t.IsTop,
		IsGood:         t.IsGood,
		Category:       t.Category,
		ThreadRole:     t.ThreadRole,
		ProcessStatus:  t.ProcessStatus,
		CollectionYear: t.CollectionYear,
		CollectionWeek: t.CollectionWeek,
	}
	if t.TagsJSON != nil && *t.TagsJSON != "" {
		_ = json.Unmarshal([]byte(*t.TagsJSON), &item.Tags)
	}
	return item
}

// ListThreads 帖子列表
// @Summary 帖子列表
// @Tags 帖子
// @Param forum query string false "吧名"
// @Param category query string false "类目"
// @Param role query string false "normal | collection"
// @Param status query string false "new | fetched | processed"
// @Param q query string false "标题/正文子串"
// @Param limit query int false "条数" default(50)
// @Param offset query int false "偏移" default(0)
// @Success 200 {object} response.Response
// @Router /api/threads [get]
func (h *Handler) ListThreads(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	until, _ := strconv.ParseInt(c.DefaultQuery("until", "0"), 10, 64)

	rows, err := h.threadRepo.List(c.Request.Context(), repository.ThreadFilter{
		Forum:    c.DefaultQuery("forum", h.cfg.DefaultForum),
		Category: c.Query("category"),
		Role:     c.Query("role"),
		Status:   c.Query("status"),
		Query:    c.Query("q"),
		SinceTS:  since,
		UntilTS:  until,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]threadItem, len(rows))
	for i, t := range rows {
		items[i] = toThreadItem(t)
	}
	response.Success(c, gin.H{"list": items, "limit": limit, "offset": offset})
}

type batchUpdateRequest struct {
	Tids     []int64  `json:"tids" binding:"required,min=1"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Status   string   `json:"status"`
}

// BatchUpdateThreads 批量标注（人工打标入口，供转发管线消费）
// @Summary 批量设置类目/标签/处理状态
// @Tags 帖子
// @Accept json
// @Param request body batchUpdateRequest true "标注"
// @Success 200 {object} response.Response
// @Router /api/threads/batch [post]
func (h *Handler) BatchUpdateThreads(c *gin.Context) {
	var req batchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Category == "" && len(req.Tags) == 0 && req.Status == "" {
		response.BadRequest(c, "nothing to update")
		return
	}

	var tagsJSON *string
	if len(req.Tags) > 0 {
		raw, err := json.Marshal(req.Tags)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		s := string(raw)
		tagsJSON = &s
	}

	updated := 0
	for _, tid := range req.Tids {
		if req.Category != "" || tagsJSON != nil {
			if err := h.threadRepo.SetCategory(c.Request.Context(), tid, req.Category, tagsJSON); err != nil {
				response.InternalError(c, err)
				return
			}
		}
		if req.Status != "" {
			if err := h.threadRepo.SetProcessStatus(c.Request.Context(), tid, req.Status); err != nil {
				response.InternalError(c, err)
				return
			}
		}
		updated++
	}
	response.Success(c, gin.H{"updated": updated})
}
