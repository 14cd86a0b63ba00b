package testutil

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeChatModel 可编排的 ChatModel
// Chunks 依次作为流式增量发出，StreamErr 在所有增量之后作为流中错误发出
type FakeChatModel struct {
	Reply     string
	Chunks    []string
	StartErr  error // Generate/Stream 直接返回的错误
	StreamErr error

	// Gate 非 nil 时，每发出一个增量前先从中取一次
	Gate chan struct{}

	mu     sync.Mutex
	inputs [][]*schema.Message
}

var _ model.BaseChatModel = (*FakeChatModel)(nil)

// Generate 实现 model.BaseChatModel
func (f *FakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.record(input)
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	return schema.AssistantMessage(f.Reply, nil), nil
}

// Stream 实现 model.BaseChatModel
func (f *FakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input)
	if f.StartErr != nil {
		return nil, f.StartErr
	}

	sr, sw := schema.Pipe[*schema.Message](0)
	go func() {
		defer sw.Close()
		for _, chunk := range f.Chunks {
			if f.Gate != nil {
				select {
				case <-f.Gate:
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				}
			}
			if closed := sw.Send(schema.AssistantMessage(chunk, nil), nil); closed {
				return
			}
		}
		if f.StreamErr != nil {
			sw.Send(nil, f.StreamErr)
		}
	}()
	return sr, nil
}

// Inputs 返回每次调用收到的消息列表
func (f *FakeChatModel) Inputs() [][]*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*schema.Message(nil), f.inputs...)
}

func (f *FakeChatModel) record(input []*schema.Message) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
}
