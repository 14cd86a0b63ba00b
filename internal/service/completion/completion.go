// Package completion 封装上游补全接口：一次性回复与流式回复
package completion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ashwinyue/next-chat/internal/service/callback"
	"github.com/ashwinyue/next-chat/internal/service/history"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// SentinelPrefix 流式调用在开始前失败时，唯一片段的前缀
	SentinelPrefix = "[stream-error]"
	// OfflineModel 离线模式下返回的模型名
	OfflineModel = "demo"

	defaultStandardModel = "deepseek-chat"
	defaultReasonerModel = "deepseek-reasoner"
)

// UpstreamError 上游调用失败
type UpstreamError struct {
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Options 客户端选项
type Options struct {
	SystemPrompt  string
	Window        int
	StandardModel string
	ReasonerModel string
	Debug         bool
}

// Client 上游补全客户端
// standard 为 nil 时处于离线模式，回显固定文本
type Client struct {
	standard model.BaseChatModel
	reasoner model.BaseChatModel
	opts     Options
	logger   *callback.Logger
}

// New 创建客户端，reasoner 为 nil 时深度思考也使用 standard
func New(standard, reasoner model.BaseChatModel, opts Options) *Client {
	if opts.StandardModel == "" {
		opts.StandardModel = defaultStandardModel
	}
	if opts.ReasonerModel == "" {
		opts.ReasonerModel = defaultReasonerModel
	}
	if reasoner == nil {
		reasoner = standard
	}
	return &Client{
		standard: standard,
		reasoner: reasoner,
		opts:     opts,
		logger:   callback.NewLogger(opts.Debug),
	}
}

// NewOffline 创建离线客户端
func NewOffline(opts Options) *Client {
	return New(nil, nil, opts)
}

// Offline 是否处于离线模式
func (c *Client) Offline() bool {
	return c.standard == nil
}

// ModelName 返回本次调用使用的模型名
func (c *Client) ModelName(deepThink bool) string {
	if c.Offline() {
		return OfflineModel
	}
	if deepThink {
		return c.opts.ReasonerModel
	}
	return c.opts.StandardModel
}

// Complete 一次性补全，返回去掉首尾空白的回复
func (c *Client) Complete(ctx context.Context, message string, prior []history.Turn, deepThink bool) (string, error) {
	if c.Offline() {
		return OfflineReply(message), nil
	}

	name := c.ModelName(deepThink)
	input := history.Assemble(c.opts.SystemPrompt, prior, message, c.opts.Window)

	resp, err := c.pick(deepThink).Generate(c.withCallbacks(ctx, name), input)
	if err != nil {
		return "", &UpstreamError{Model: name, Err: err}
	}
	if resp == nil {
		return "", &UpstreamError{Model: name, Err: fmt.Errorf("empty response")}
	}
	return strings.TrimSpace(resp.Content), nil
}

// StreamComplete 流式补全
// 返回的流只能读一次，空增量被跳过；调用在开始前失败时返回只含一个哨兵片段的流，
// 流中途失败则由 Recv 返回非 EOF 错误。调用方负责 Close
func (c *Client) StreamComplete(ctx context.Context, message string, prior []history.Turn, deepThink bool) *schema.StreamReader[string] {
	if c.Offline() {
		return schema.StreamReaderFromArray(splitRunes(OfflineReply(message)))
	}

	name := c.ModelName(deepThink)
	input := history.Assemble(c.opts.SystemPrompt, prior, message, c.opts.Window)

	sr, err := c.pick(deepThink).Stream(c.withCallbacks(ctx, name), input)
	if err != nil {
		log.Printf("[completion] stream %s failed to start: %v", name, err)
		return schema.StreamReaderFromArray([]string{Sentinel(err)})
	}

	return schema.StreamReaderWithConvert(sr, func(msg *schema.Message) (string, error) {
		if msg == nil || msg.Content == "" {
			return "", schema.ErrNoValue
		}
		return msg.Content, nil
	})
}

// Sentinel 构造哨兵片段
func Sentinel(err error) string {
	return SentinelPrefix + " " + err.Error()
}

// IsSentinel 判断片段是否为哨兵
func IsSentinel(fragment string) bool {
	return strings.HasPrefix(fragment, SentinelPrefix)
}

// OfflineReply 离线模式的固定回复
func OfflineReply(message string) string {
	return "(演示模式) 你说：" + message
}

func (c *Client) pick(deepThink bool) model.BaseChatModel {
	if deepThink {
		return c.reasoner
	}
	return c.standard
}

func (c *Client) withCallbacks(ctx context.Context, name string) context.Context {
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "OpenAI",
		Component: components.ComponentOfChatModel,
	}, c.logger)
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
