package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ashwinyue/next-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	svc *service.Services
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(svc *service.Services) *SystemHandler {
	return &SystemHandler{svc: svc}
}

// Index 首页
// GET /
func (h *SystemHandler) Index(c *gin.Context) {
	c.File(filepath.Join(h.svc.Config.Server.StaticDir, "index.html"))
}

// Health 健康检查
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	mode := "online"
	if h.svc.Completion.Offline() {
		mode = "offline"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "mode": mode, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
}
