package handler

import (
	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/service"
	"github.com/ashwinyue/next-chat/internal/service/session"
	"github.com/gin-gonic/gin"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	svc *service.Services
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(svc *service.Services) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CreateSession 创建会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req session.CreateRequest
	if err := bindBody(c, &req); err != nil {
		Error(c, err)
		return
	}

	s, err := h.svc.Session.Create(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, s)
}

// ListSessions 列出会话，最近更新的在前
// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.Session.List(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}

	Success(c, gin.H{"sessions": sessions})
}

// GetSession 获取会话
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.svc.Session.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, s)
}

// UpdateSession 更新会话标题或深度思考开关
// PATCH /api/sessions/:id
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	var req session.UpdateRequest
	if err := bindBody(c, &req); err != nil {
		Error(c, err)
		return
	}

	if err := h.svc.Session.Update(c.Request.Context(), c.Param("id"), &req); err != nil {
		Error(c, err)
		return
	}

	OK(c)
}

// DeleteSession 删除会话
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.Session.Delete(c.Request.Context(), c.Param("id")); err != nil {
		Error(c, err)
		return
	}

	OK(c)
}

// GetMessages 获取会话消息
// GET /api/sessions/:id/messages
func (h *SessionHandler) GetMessages(c *gin.Context) {
	messages, err := h.svc.Session.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	if messages == nil {
		messages = []*model.Message{}
	}

	Success(c, gin.H{"messages": messages})
}
