// Package history 组装发往上游模型的消息列表
package history

import (
	"encoding/json"

	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// DefaultWindow 携带的历史消息条数上限
	DefaultWindow = 9
	// DefaultSystemPrompt 系统提示词
	DefaultSystemPrompt = "You are a helpful assistant."
)

// Turn 一条历史消息
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// valid 只保留 user/assistant 且内容非空的消息
func (t Turn) valid() bool {
	return model.ValidRole(t.Role) && t.Content != ""
}

// Assemble 构造上游消息列表：系统提示词、最近的历史、当前用户消息
// prior 的最后一条与当前消息重复，不计入窗口
func Assemble(systemPrompt string, prior []Turn, message string, window int) []*schema.Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if window <= 0 {
		window = DefaultWindow
	}

	messages := make([]*schema.Message, 0, window+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))

	for _, turn := range recent(prior, window) {
		if !turn.valid() {
			continue
		}
		if turn.Role == model.RoleAssistant {
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		} else {
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}

	return append(messages, schema.UserMessage(message))
}

// recent 返回去掉最新一条后的最近 window 条
func recent(prior []Turn, window int) []Turn {
	n := len(prior)
	if n <= 1 {
		return nil
	}
	start := n - (window + 1)
	if start < 0 {
		start = 0
	}
	return prior[start : n-1]
}

// FromRaw 解析客户端提交的 history 数组
// 非数组时返回空，格式不对的条目直接跳过
func FromRaw(raw json.RawMessage) []Turn {
	if len(raw) == 0 {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	turns := make([]Turn, 0, len(entries))
	for _, entry := range entries {
		var fields map[string]interface{}
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			continue
		}
		role, ok := fields["role"].(string)
		if !ok {
			continue
		}
		content, ok := fields["content"].(string)
		if !ok {
			continue
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}
	return turns
}

// FromMessages 将已存储的消息转为历史
func FromMessages(messages []*model.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
