// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"

	"github.com/ashwinyue/next-chat/internal/model"
)

// SessionStore 会话与消息数据访问接口
// 所有方法都在传入 ctx 的作用域内执行，调用方决定连接的生命周期
type SessionStore interface {
	// 会话操作
	CreateSession(ctx context.Context, session *model.Session) error
	ListSessions(ctx context.Context, limit int) ([]*model.Session, error)
	GetSessionByID(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, id string, patch SessionPatch) error
	DeleteSession(ctx context.Context, id string) error

	// 消息操作
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*model.Message, error)

	// 一次对话的写入
	RecordUserTurn(ctx context.Context, msg *model.Message, title TitleRule) (bool, error)
}

// 确保 ChatRepository 实现了接口
var _ SessionStore = (*ChatRepository)(nil)
