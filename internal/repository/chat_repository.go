package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashwinyue/next-chat/internal/model"
	"gorm.io/gorm"
)

// MaxSessionList 会话列表的最大条数
const MaxSessionList = 100

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRole 消息角色不合法
	ErrInvalidRole = errors.New("invalid message role")
)

// SessionPatch 会话的部分更新，nil 字段保持不变
type SessionPatch struct {
	Title     *string
	DeepThink *bool
	At        time.Time
}

// Empty 是否没有任何字段需要更新
func (p SessionPatch) Empty() bool {
	return p.Title == nil && p.DeepThink == nil
}

// TitleRule 首条用户消息的自动标题规则
// 仅当会话没有历史消息且标题仍为 Default 时写入 Derived
type TitleRule struct {
	Default string
	Derived string
}

// ChatRepository 聊天数据访问
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天仓库
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateSession 创建会话
func (r *ChatRepository) CreateSession(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSessionByID 获取会话
func (r *ChatRepository) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions 按更新时间倒序列出会话
func (r *ChatRepository) ListSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	if limit <= 0 || limit > MaxSessionList {
		limit = MaxSessionList
	}
	var sessions []*model.Session
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// UpdateSession 更新会话
// 只有设置了字段时才刷新 updated_at，空更新仅校验会话存在
func (r *ChatRepository) UpdateSession(ctx context.Context, id string, patch SessionPatch) error {
	db := r.db.WithContext(ctx)

	if patch.Empty() {
		var count int64
		if err := db.Model(&model.Session{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrSessionNotFound
		}
		return nil
	}

	updates := map[string]interface{}{"updated_at": patch.At}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.DeepThink != nil {
		updates["deep_think"] = *patch.DeepThink
	}

	res := db.Model(&model.Session{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession 删除会话及其消息，会话不存在时同样视为成功
func (r *ChatRepository) DeleteSession(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Message{}, "session_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Session{}, "id = ?", id).Error
	})
}

// AppendMessage 追加消息并刷新会话的 updated_at
func (r *ChatRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendMessage(tx, msg)
	})
}

// RecordUserTurn 写入用户消息，必要时按首条消息设置标题
// 标题使用条件更新，并发的首条消息只有一个能生效
func (r *ChatRepository) RecordUserTurn(ctx context.Context, msg *model.Message, title TitleRule) (bool, error) {
	titled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior int64
		if err := tx.Model(&model.Message{}).Where("session_id = ?", msg.SessionID).Count(&prior).Error; err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}

		if err := appendMessage(tx, msg); err != nil {
			return err
		}

		if prior > 0 || title.Derived == "" || title.Derived == title.Default {
			return nil
		}
		res := tx.Model(&model.Session{}).
			Where("id = ? AND title = ?", msg.SessionID, title.Default).
			Updates(map[string]interface{}{"title": title.Derived, "updated_at": msg.CreatedAt})
		if res.Error != nil {
			return fmt.Errorf("failed to set title: %w", res.Error)
		}
		titled = res.RowsAffected > 0
		return nil
	})
	return titled, err
}

// ListMessages 获取会话消息，按时间正序
func (r *ChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

func appendMessage(tx *gorm.DB, msg *model.Message) error {
	if !model.ValidRole(msg.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res := tx.Model(&model.Session{}).Where("id = ?", msg.SessionID).Update("updated_at", msg.CreatedAt)
	if res.Error != nil {
		return fmt.Errorf("failed to touch session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	if err := tx.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}
