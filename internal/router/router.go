package router

import (
	"github.com/ashwinyue/next-chat/internal/handler"
	"github.com/ashwinyue/next-chat/internal/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, staticDir string) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 首页与静态资源
	r.GET("/", h.System.Index)
	r.Static("/static", staticDir)

	// 健康检查
	r.GET("/health", h.System.Health)

	api := r.Group("/api")
	{
		// 无会话对话
		api.POST("/chat", h.Chat.Chat)
		api.POST("/chat_stream", h.Chat.ChatStream)

		// 带会话的流式对话
		api.POST("/chat_stream_v2", h.Chat.ChatStreamV2)

		// 会话
		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.Session.CreateSession)
			sessions.GET("", h.Session.ListSessions)
			sessions.GET("/:id", h.Session.GetSession)
			sessions.PATCH("/:id", h.Session.UpdateSession)
			sessions.DELETE("/:id", h.Session.DeleteSession)
			sessions.GET("/:id/messages", h.Session.GetMessages)
		}
	}

	return r
}
