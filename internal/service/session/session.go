// Package session 提供会话的增删改查
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/history"
	"github.com/ashwinyue/next-chat/internal/service/types"
	"github.com/google/uuid"
)

// DefaultTitle 默认会话标题
const DefaultTitle = "新会话"

// Service 会话服务
type Service struct {
	store repository.SessionStore
	cache *history.Cache
	cfg   config.ChatConfig
	now   func() time.Time
}

// NewService 创建会话服务
func NewService(store repository.SessionStore, cache *history.Cache, cfg config.ChatConfig) *Service {
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = DefaultTitle
	}
	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest 创建会话请求
type CreateRequest struct {
	Title     *string `json:"title"`
	DeepThink bool    `json:"deep_think"`
}

// UpdateRequest 更新会话请求，未出现的字段保持不变
type UpdateRequest struct {
	Title     *string `json:"title"`
	DeepThink *bool   `json:"deep_think"`
}

// Create 创建会话，标题为空时使用默认标题
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*model.Session, error) {
	title := s.cfg.DefaultTitle
	if req.Title != nil {
		if t := strings.TrimSpace(*req.Title); t != "" {
			title = t
		}
	}

	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		Title:     title,
		DeepThink: req.DeepThink,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// List 按更新时间倒序列出会话
func (s *Service) List(ctx context.Context) ([]*model.Session, error) {
	sessions, err := s.store.ListSessions(ctx, s.cfg.SessionListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Get 获取会话
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.store.GetSessionByID(ctx, id)
}

// Update 更新会话标题或深度思考开关
func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) error {
	patch := repository.SessionPatch{DeepThink: req.DeepThink, At: s.now()}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return types.Invalid("title 不能为空")
		}
		patch.Title = &title
	}
	return s.store.UpdateSession(ctx, id, patch)
}

// Delete 删除会话及其消息，重复删除不报错
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// Messages 获取会话消息，会话不存在时返回 ErrSessionNotFound
func (s *Service) Messages(ctx context.Context, id string) ([]*model.Message, error) {
	if _, err := s.store.GetSessionByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}
