// Package types 定义服务层共享的错误与上下文工具
package types

import (
	"errors"

	"github.com/ashwinyue/next-chat/internal/repository"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = repository.ErrSessionNotFound

// ValidationError 请求参数不合法，Message 直接返回给客户端
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid 构造参数错误
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation 判断是否为参数错误
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
