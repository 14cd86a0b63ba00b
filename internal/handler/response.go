package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/ashwinyue/next-chat/internal/service/types"
	"github.com/gin-gonic/gin"
)

const (
	msgSessionNotFound = "会话不存在"
	msgBadBody         = "请求体格式错误"
)

// ErrorResponse JSON 错误响应
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// SuccessResponse 无数据的成功响应
type SuccessResponse struct {
	Success bool `json:"success"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// OK 返回 {"success": true}
func OK(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: msg})
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg, detail string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg, Detail: detail})
}

// Error 根据错误类型返回相应的 JSON 错误响应
func Error(c *gin.Context, err error) {
	if err == nil {
		return
	}
	var v *types.ValidationError
	switch {
	case errors.As(err, &v):
		BadRequest(c, v.Message)
	case errors.Is(err, types.ErrSessionNotFound):
		NotFound(c, msgSessionNotFound)
	default:
		log.Printf("[handler] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		InternalServerError(c, "internal server error", err.Error())
	}
}

// TextError 流式接口在输出开始前失败时返回纯文本错误
func TextError(c *gin.Context, err error) {
	var v *types.ValidationError
	switch {
	case errors.As(err, &v):
		c.String(http.StatusBadRequest, v.Message)
	case errors.Is(err, types.ErrSessionNotFound):
		c.String(http.StatusNotFound, msgSessionNotFound)
	default:
		log.Printf("[handler] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.String(http.StatusInternalServerError, "internal server error")
	}
}

// bindBody 解析 JSON 请求体，空请求体按空对象处理
// 格式或字段类型不对时返回校验错误
func bindBody(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("[handler] %s %s bad request body: %v", c.Request.Method, c.FullPath(), err)
		return types.Invalid(msgBadBody)
	}
	return nil
}
