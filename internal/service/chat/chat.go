// Package chat 提供对话服务：一次性回复、无会话流式回复、带会话的流式回复
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/completion"
	"github.com/ashwinyue/next-chat/internal/service/history"
	"github.com/ashwinyue/next-chat/internal/service/session"
	"github.com/ashwinyue/next-chat/internal/service/types"
)

const (
	defaultTitleMaxRunes   = 20
	defaultFinalizeTimeout = 10 * time.Second
)

// Service 对话服务
type Service struct {
	store  repository.SessionStore
	client *completion.Client
	cache  *history.Cache
	cfg    config.ChatConfig
	now    func() time.Time
}

// NewService 创建对话服务
func NewService(store repository.SessionStore, client *completion.Client, cache *history.Cache, cfg config.ChatConfig) *Service {
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = session.DefaultTitle
	}
	if cfg.TitleMaxRunes <= 0 {
		cfg.TitleMaxRunes = defaultTitleMaxRunes
	}
	return &Service{
		store:  store,
		client: client,
		cache:  cache,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ChatRequest 无会话的对话请求，history 由客户端提交
type ChatRequest struct {
	Message   string          `json:"message"`
	History   json.RawMessage `json:"history"`
	DeepThink bool            `json:"deep_think"`
}

// ChatReply 一次性回复
type ChatReply struct {
	Reply string `json:"reply"`
	Model string `json:"model"`
}

// StreamSessionRequest 带会话的流式请求
type StreamSessionRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Chat 一次性回复
func (s *Service) Chat(ctx context.Context, req *ChatRequest) (*ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, types.Invalid("message 不能为空")
	}

	reply, err := s.client.Complete(ctx, message, history.FromRaw(req.History), req.DeepThink)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Reply: reply, Model: s.client.ModelName(req.DeepThink)}, nil
}

// Stream 无会话的流式回复，不落库
func (s *Service) Stream(ctx context.Context, req *ChatRequest) (*Exchange, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, types.Invalid("message 不能为空")
	}

	e := s.newExchange(ctx, "")
	e.transition(StateAssemblingHistory)
	e.start(message, history.FromRaw(req.History), req.DeepThink)
	return e, nil
}

// PrepareExchange 校验请求、写入用户消息并启动上游流
// 返回错误时尚未输出任何内容；用户消息一旦写入即持久，即使后续调用失败
func (s *Service) PrepareExchange(ctx context.Context, req *StreamSessionRequest) (_ *Exchange, err error) {
	sessionID := strings.TrimSpace(req.SessionID)
	message := strings.TrimSpace(req.Message)
	if sessionID == "" {
		return nil, types.Invalid("session_id 不能为空")
	}
	if message == "" {
		return nil, types.Invalid("message 不能为空")
	}

	e := s.newExchange(ctx, sessionID)
	defer func() {
		if err != nil {
			e.cancel()
		}
	}()
	e.transition(StateAssemblingHistory)

	sess, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	userTurn := &model.Message{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   message,
		CreatedAt: s.now(),
	}
	titled, err := s.store.RecordUserTurn(ctx, userTurn, repository.TitleRule{
		Default: s.cfg.DefaultTitle,
		Derived: AutoTitle(message, s.cfg.TitleMaxRunes),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}
	if titled {
		log.Printf("[chat] %s session %s titled from first message", e.requestID, sessionID)
	}
	e.userAt = userTurn.CreatedAt
	s.cache.Append(ctx, sessionID, history.Turn{Role: model.RoleUser, Content: message})

	prior, err := s.cache.Load(ctx, sessionID, func(ctx context.Context) ([]history.Turn, error) {
		messages, err := s.store.ListMessages(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return history.FromMessages(messages), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	e.start(message, prior, sess.DeepThink)
	return e, nil
}

// AutoTitle 由首条消息生成标题，超过 maxRunes 时截断并加省略号
func AutoTitle(message string, maxRunes int) string {
	title := strings.TrimSpace(message)
	runes := []rune(title)
	if maxRunes > 0 && len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "..."
	}
	return title
}
