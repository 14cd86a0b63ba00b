package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/chat"
	"github.com/ashwinyue/next-chat/internal/service/completion"
	"github.com/ashwinyue/next-chat/internal/service/history"
	"github.com/ashwinyue/next-chat/internal/service/session"
	"github.com/redis/go-redis/v9"
)

// Services 服务集合
type Services struct {
	Chat       *chat.Service
	Session    *session.Service
	Completion *completion.Client

	Config *config.Config
	Repos  *repository.Repositories
}

// NewServices 创建所有服务
// redisClient 为 nil 时不缓存历史
func NewServices(repos *repository.Repositories, cfg *config.Config, redisClient *redis.Client) (*Services, error) {
	ctx := context.Background()

	standard, reasoner, err := newChatModels(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to init chat model: %w", err)
	}
	mc, _ := cfg.AI.Active()

	client := completion.New(standard, reasoner, completion.Options{
		SystemPrompt:  cfg.AI.SystemPrompt,
		Window:        cfg.Chat.HistoryWindow,
		StandardModel: mc.Model,
		ReasonerModel: reasonerName(mc),
		Debug:         cfg.App.Debug,
	})

	// 缓存只需覆盖组装时用到的最近 window+1 条
	window := cfg.Chat.HistoryWindow
	if window <= 0 {
		window = history.DefaultWindow
	}
	cache := history.NewCache(redisClient, time.Duration(cfg.Redis.HistoryTTL)*time.Second, window+1)

	return &Services{
		Chat:       chat.NewService(repos.Chat, client, cache, cfg.Chat),
		Session:    session.NewService(repos.Chat, cache, cfg.Chat),
		Completion: client,
		Config:     cfg,
		Repos:      repos,
	}, nil
}

// Ping 检查数据库连接
func (s *Services) Ping(ctx context.Context) error {
	sqlDB, err := s.Repos.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func reasonerName(mc config.ModelConfig) string {
	if mc.ReasonerModel == "" {
		return mc.Model
	}
	return mc.ReasonerModel
}
