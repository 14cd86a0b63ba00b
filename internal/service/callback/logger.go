// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Logger 记录上游模型调用的日志
// 实现 callbacks.Handler；错误总是记录，其余事件只在调试模式下记录
type Logger struct {
	EnableDebug bool
}

var _ callbacks.Handler = (*Logger)(nil)

// NewLogger 创建日志回调处理器
func NewLogger(enableDebug bool) *Logger {
	return &Logger{EnableDebug: enableDebug}
}

// OnStart 模型调用开始
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !l.EnableDebug {
		return ctx
	}
	messages := 0
	if in := model.ConvCallbackInput(input); in != nil {
		messages = len(in.Messages)
	}
	log.Printf("[Eino] start: name=%s type=%s messages=%d", info.Name, info.Type, messages)
	return ctx
}

// OnEnd 模型调用成功结束（非流式）
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !l.EnableDebug {
		return ctx
	}
	out := model.ConvCallbackOutput(output)
	if out != nil && out.TokenUsage != nil {
		log.Printf("[Eino] end: name=%s tokens=%d/%d", info.Name,
			out.TokenUsage.PromptTokens, out.TokenUsage.CompletionTokens)
		return ctx
	}
	log.Printf("[Eino] end: name=%s", info.Name)
	return ctx
}

// OnError 模型调用出错
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Printf("[Eino] error: name=%s type=%s error=%v", info.Name, info.Type, err)
	return ctx
}

// OnStartWithStreamInput 流式输入，本服务不使用，直接关闭
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

// OnEndWithStreamOutput 流式输出
// 回调拿到的是流的副本，必须读完并关闭，否则上游连接无法释放
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()
		chunks := 0
		for {
			_, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if l.EnableDebug {
					log.Printf("[Eino] stream aborted: name=%s chunks=%d error=%v", info.Name, chunks, err)
				}
				return
			}
			chunks++
		}
		if l.EnableDebug {
			log.Printf("[Eino] stream end: name=%s chunks=%d", info.Name, chunks)
		}
	}()
	return ctx
}
