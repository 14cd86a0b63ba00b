package handler

import (
	"errors"
	"net/http"

	"github.com/ashwinyue/next-chat/internal/service"
	"github.com/ashwinyue/next-chat/internal/service/chat"
	"github.com/ashwinyue/next-chat/internal/service/completion"
	"github.com/ashwinyue/next-chat/internal/service/types"
	"github.com/gin-gonic/gin"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Chat 一次性回复
// POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chat.ChatRequest
	if err := bindBody(c, &req); err != nil {
		Error(c, err)
		return
	}

	reply, err := h.svc.Chat.Chat(c.Request.Context(), &req)
	if err != nil {
		var upstream *completion.UpstreamError
		switch {
		case types.IsValidation(err):
			Error(c, err)
		case errors.As(err, &upstream):
			InternalServerError(c, "LLM 调用失败", upstream.Err.Error())
		default:
			InternalServerError(c, "LLM 调用失败", err.Error())
		}
		return
	}

	Success(c, reply)
}

// ChatStream 无会话的流式回复
// POST /api/chat_stream
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req chat.ChatRequest
	if err := bindBody(c, &req); err != nil {
		TextError(c, err)
		return
	}

	ex, err := h.svc.Chat.Stream(c.Request.Context(), &req)
	if err != nil {
		TextError(c, err)
		return
	}

	relay(c, ex)
}

// ChatStreamV2 带会话的流式回复，回复结束后落库
// POST /api/chat_stream_v2
func (h *ChatHandler) ChatStreamV2(c *gin.Context) {
	var req chat.StreamSessionRequest
	if err := bindBody(c, &req); err != nil {
		TextError(c, err)
		return
	}

	ex, err := h.svc.Chat.PrepareExchange(c.Request.Context(), &req)
	if err != nil {
		TextError(c, err)
		return
	}

	relay(c, ex)
}

// relay 以分块纯文本逐片段写出，每个片段立即 Flush
func relay(c *gin.Context, ex *chat.Exchange) chat.Result {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	return ex.Relay(c.Request.Context(), func(fragment string) error {
		if _, err := c.Writer.WriteString(fragment); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
}
