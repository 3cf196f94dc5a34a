package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tieba-pipeline/internal/service"
	"github.com/d60-Lab/tieba-pipeline/pkg/response"
)

type crawlRequest struct {
	Forum          string `json:"forum"`
	PageSize       int    `json:"page_size"`
	InitialHours   int    `json:"initial_hours"`
	OverlapSeconds int    `json:"overlap_seconds"`
	MaxPages       int    `json:"max_pages"`
}

// SubmitCrawl 提交抓取任务
// @Summary 抓取最新主题帖入库
// @Tags 任务
// @Accept json
// @Param request body crawlRequest true "参数（缺省取配置）"
// @Success 200 {object} response.Response
// @Router /api/jobs/crawl-threads [post]
func (h *Handler) SubmitCrawl(c *gin.Context) {
	var req crawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	params := service.CrawlParams{
		Forum:          req.Forum,
		PageSize:       req.PageSize,
		InitialHours:   req.InitialHours,
		OverlapSeconds: req.OverlapSeconds,
		MaxPages:       req.MaxPages,
	}
	if params.Forum == "" {
		params.Forum = h.cfg.DefaultForum
	}
	if params.Forum == "" {
		response.BadRequest(c, "forum is required")
		return
	}
	if params.PageSize <= 0 {
		params.PageSize = h.cfg.Crawler.PageSize
	}
	if params.InitialHours <= 0 {
		params.InitialHours = h.cfg.Crawler.InitialHours
	}
	if params.OverlapSeconds <= 0 {
		params.OverlapSeconds = h.cfg.Crawler.OverlapSeconds
	}
	if params.MaxPages <= 0 {
		params.MaxPages = h.cfg.Crawler.MaxPages
	}

	job := h.jobs.Submit("crawl_threads", func(ctx context.Context) (any, error) {
		return h.crawler.Run(ctx, params)
	})
	response.Success(c, job)
}

type downloadRequest struct {
	Limit        int  `json:"limit"`
	IncludeError bool `json:"include_error"`
}

// SubmitDownloadImages 提交图片下载任务
// @Summary 排空图片下载队列
// @Tags 任务
// @Accept json
// @Param request body downloadRequest true "参数"
// @Success 200 {object} response.Response
// @Router /api/jobs/download-images [post]
func (h *Handler) SubmitDownloadImages(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	params := service.DownloadParams{Limit: req.Limit, IncludeError: req.IncludeError}

	job := h.jobs.Submit("download_images", func(ctx context.Context) (any, error) {
		return h.downloader.Run(ctx, params)
	})
	response.Success(c, job)
}

type backfillRequest struct {
	Forum  string `json:"forum"`
	Days   int    `json:"days"`
	DryRun bool   `json:"dry_run"`
}

// SubmitBackfill 提交合集回填任务
// @Summary 从标题回填合集标记（不重抓）
// @Tags 任务
// @Accept json
// @Param request body backfillRequest true "参数"
// @Success 200 {object} response.Response
// @Router /api/jobs/sync-collections [post]
func (h *Handler) SubmitBackfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	params := service.BackfillParams{Forum: req.Forum, Days: req.Days, DryRun: req.DryRun}
	if params.Forum == "" {
		params.Forum = h.cfg.DefaultForum
	}
	if params.Forum == "" {
		response.BadRequest(c, "forum is required")
		return
	}

	job := h.jobs.Submit("sync_collections", func(ctx context.Context) (any, error) {
		return h.backfill.Run(ctx, params)
	})
	response.Success(c, job)
}

type relayRequest struct {
	Forum        string `json:"forum"`
	Category     string `json:"category"`
	IncludeError bool   `json:"include_error"`
	DryRun       bool   `json:"dry_run"`

	Mode               string `json:"mode"`
	MaxPosts           int    `json:"max_posts"`
	MinIntervalSeconds int    `json:"min_interval_seconds"`
	MaxTextChars       int    `json:"max_text_chars"`
	MaxImages          int    `json:"max_images"`
	LookbackDays       int    `json:"lookback_days"`
}

// SubmitRelay 提交转发任务
// @Summary 已标注帖转发进周合集帖
// @Tags 任务
// @Accept json
// @Param request body relayRequest true "参数（缺省取配置）"
// @Success 200 {object} response.Response
// @Router /api/jobs/relay-labeled [post]
func (h *Handler) SubmitRelay(c *gin.Context) {
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	params := service.RelayParams{
		Forum:              req.Forum,
		Category:           req.Category,
		IncludeError:       req.IncludeError,
		DryRun:             req.DryRun,
		Mode:               req.Mode,
		MaxPosts:           req.MaxPosts,
		MinIntervalSeconds: req.MinIntervalSeconds,
		MaxTextChars:       req.MaxTextChars,
		MaxImages:          req.MaxImages,
		LookbackDays:       req.LookbackDays,
	}
	if params.Forum == "" {
		params.Forum = h.cfg.DefaultForum
	}
	if params.Forum == "" {
		response.BadRequest(c, "forum is required")
		return
	}
	if params.Mode == "" {
		params.Mode = h.cfg.Relay.Mode
	}
	if params.MaxPosts <= 0 {
		params.MaxPosts = h.cfg.Relay.MaxPosts
	}
	if params.MinIntervalSeconds <= 0 {
		params.MinIntervalSeconds = h.cfg.Relay.MinIntervalSeconds
	}
	if params.MaxTextChars <= 0 {
		params.MaxTextChars = h.cfg.Relay.MaxTextChars
	}
	if params.MaxImages <= 0 {
		params.MaxImages = h.cfg.Relay.MaxImages
	}
	if params.LookbackDays <= 0 {
		params.LookbackDays = h.cfg.Relay.LookbackDays
	}

	job := h.jobs.Submit("relay_labeled_threads", func(ctx context.Context) (any, error) {
		return h.relay.Run(ctx, params)
	})
	response.Success(c, job)
}

// GetJob 查询任务
// @Summary 查询任务状态
// @Tags 任务
// @Param id path string true "任务ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	job, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "job not found: "+c.Param("id"))
		return
	}
	response.Success(c, job)
}

// ListJobs 任务列表
// @Summary 任务列表（新任务在前）
// @Tags 任务
// @Param limit query int false "条数" default(50)
// @Success 200 {object} response.Response
// @Router /api/jobs [get]
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	response.Success(c, h.jobs.List(limit))
}
