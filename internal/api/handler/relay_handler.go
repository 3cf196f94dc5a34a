package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tieba-pipeline/internal/repository"
	"github.com/d60-Lab/tieba-pipeline/pkg/response"
)

// ListRelayTasks 转发任务列表
// @Summary 转发任务列表
// @Tags 转发
// @Param status query string false "PENDING | POSTING | DONE | ERROR | SKIPPED | UNKNOWN"
// @Param category query string false "类目"
// @Param limit query int false "条数" default(50)
// @Param offset query int false "偏移" default(0)
// @Success 200 {object} response.Response
// @Router /api/relay-tasks [get]
func (h *Handler) ListRelayTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.relayRepo.List(c.Request.Context(), repository.RelayTaskFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"list": rows, "limit": limit, "offset": offset})
}

// GetStats 语料统计
// @Summary 总览统计
// @Tags 统计
// @Success 200 {object} response.Response
// @Router /api/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	snap, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, snap)
}

// GetSettings 运行配置（脱敏）
// @Summary 配置回显
// @Tags 统计
// @Success 200 {object} response.Response
// @Router /api/settings [get]
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := h.cfg
	rules := make([]gin.H, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, gin.H{"category": r.Category, "keywords": r.Keywords})
	}
	response.Success(c, gin.H{
		"default_forum":    cfg.DefaultForum,
		"timezone":         cfg.Timezone,
		"accounts":         len(cfg.Accounts),
		"collection_rules": rules,
		"crawler": gin.H{
			"page_size":       cfg.Crawler.PageSize,
			"initial_hours":   cfg.Crawler.InitialHours,
			"overlap_seconds": cfg.Crawler.OverlapSeconds,
			"max_pages":       cfg.Crawler.MaxPages,
		},
		"relay": gin.H{
			"mode":                 cfg.Relay.Mode,
			"max_posts":            cfg.Relay.MaxPosts,
			"min_interval_seconds": cfg.Relay.MinIntervalSeconds,
			"max_text_chars":       cfg.Relay.MaxTextChars,
			"max_images":           cfg.Relay.MaxImages,
			"lookback_days":        cfg.Relay.LookbackDays,
		},
	})
}
