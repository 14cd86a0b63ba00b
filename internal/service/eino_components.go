package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// newChatModels 创建标准模型与深度思考模型
// 未配置 API Key 时返回 nil，服务以离线模式运行
func newChatModels(ctx context.Context, aiCfg *config.AIConfig) (standard, reasoner model.BaseChatModel, err error) {
	mc, err := aiCfg.Active()
	if err != nil {
		return nil, nil, err
	}
	if mc.APIKey == "" {
		log.Printf("Warning: no api key for provider %q, running in offline mode", aiCfg.Provider)
		return nil, nil, nil
	}

	standard, err = newChatModel(ctx, aiCfg, mc, mc.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat model %s: %w", mc.Model, err)
	}

	if mc.ReasonerModel == "" || mc.ReasonerModel == mc.Model {
		return standard, standard, nil
	}
	reasoner, err = newChatModel(ctx, aiCfg, mc, mc.ReasonerModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create reasoner model %s: %w", mc.ReasonerModel, err)
	}
	return standard, reasoner, nil
}

// newChatModel 创建 OpenAI 兼容的 ChatModel（DeepSeek 同样走这个协议）
func newChatModel(ctx context.Context, aiCfg *config.AIConfig, mc config.ModelConfig, name string) (model.BaseChatModel, error) {
	temperature := aiCfg.Temperature
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      mc.APIKey,
		BaseURL:     mc.BaseURL,
		Model:       name,
		Temperature: &temperature,
		Timeout:     time.Duration(mc.Timeout) * time.Second,
	})
}
