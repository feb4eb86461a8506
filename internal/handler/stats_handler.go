package handler

import (
	"net/http"

	"runquest/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type StatsHandler struct {
	stats *service.StatsService
	db    *gorm.DB
}

func NewStatsHandler(stats *service.StatsService, db *gorm.DB) *StatsHandler {
	return &StatsHandler{stats: stats, db: db}
}

// GetStats 全站统计
func (h *StatsHandler) GetStats(c *gin.Context) {
	stats, err := h.stats.Compute(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Health 存活检查，同时 ping 数据库
func (h *StatsHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "storage_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
