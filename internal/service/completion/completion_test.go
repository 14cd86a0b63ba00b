package completion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ashwinyue/next-chat/internal/service/history"
	"github.com/ashwinyue/next-chat/internal/testutil"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain 读完流，返回所有片段和结束时的错误（EOF 视为 nil）
func drain(t *testing.T, sr *schema.StreamReader[string]) ([]string, error) {
	t.Helper()
	defer sr.Close()
	var out []string
	for {
		frag, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestClient_Offline(t *testing.T) {
	c := NewOffline(Options{})

	assert.True(t, c.Offline())
	assert.Equal(t, OfflineModel, c.ModelName(false))
	assert.Equal(t, OfflineModel, c.ModelName(true))

	reply, err := c.Complete(context.Background(), "hello", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "(演示模式) 你说：hello", reply)

	frags, err := drain(t, c.StreamComplete(context.Background(), "你好", nil, true))
	require.NoError(t, err)
	assert.Equal(t, []rune(OfflineReply("你好")), []rune(strings.Join(frags, "")))
	assert.Len(t, frags, len([]rune(OfflineReply("你好"))))
	for _, f := range frags {
		assert.Len(t, []rune(f), 1)
	}
}

func TestClient_ModelSelection(t *testing.T) {
	standard := &testutil.FakeChatModel{Reply: "standard"}
	reasoner := &testutil.FakeChatModel{Reply: "reasoner"}
	c := New(standard, reasoner, Options{})

	assert.Equal(t, "deepseek-chat", c.ModelName(false))
	assert.Equal(t, "deepseek-reasoner", c.ModelName(true))

	reply, err := c.Complete(context.Background(), "q", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "reasoner", reply)
	assert.Empty(t, standard.Inputs())

	reply, err = c.Complete(context.Background(), "q", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "standard", reply)
}

func TestClient_CompleteTrimsAndAssembles(t *testing.T) {
	fake := &testutil.FakeChatModel{Reply: "  \n answer \t"}
	c := New(fake, nil, Options{SystemPrompt: "be brief"})
	prior := []history.Turn{
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "q"},
	}

	reply, err := c.Complete(context.Background(), "q", prior, false)
	require.NoError(t, err)
	assert.Equal(t, "answer", reply)

	inputs := fake.Inputs()
	require.Len(t, inputs, 1)
	require.Len(t, inputs[0], 4)
	assert.Equal(t, schema.System, inputs[0][0].Role)
	assert.Equal(t, "be brief", inputs[0][0].Content)
	assert.Equal(t, "q", inputs[0][3].Content)
}

func TestClient_CompleteUpstreamError(t *testing.T) {
	cause := errors.New("connection refused")
	c := New(&testutil.FakeChatModel{StartErr: cause}, nil, Options{})

	_, err := c.Complete(context.Background(), "q", nil, false)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "deepseek-chat", upstream.Model)
	assert.ErrorIs(t, err, cause)
}

func TestClient_StreamSkipsEmptyDeltas(t *testing.T) {
	c := New(&testutil.FakeChatModel{Chunks: []string{"", "Hel", "", "lo", ""}}, nil, Options{})

	frags, err := drain(t, c.StreamComplete(context.Background(), "q", nil, false))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, frags)
}

func TestClient_StreamStartFailureYieldsSentinel(t *testing.T) {
	c := New(&testutil.FakeChatModel{StartErr: errors.New("401 unauthorized")}, nil, Options{})

	frags, err := drain(t, c.StreamComplete(context.Background(), "q", nil, false))

	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, IsSentinel(frags[0]))
	assert.Equal(t, "[stream-error] 401 unauthorized", frags[0])
}

func TestClient_StreamMidFailure(t *testing.T) {
	cause := errors.New("connection reset")
	c := New(&testutil.FakeChatModel{Chunks: []string{"par", "tial"}, StreamErr: cause}, nil, Options{})

	frags, err := drain(t, c.StreamComplete(context.Background(), "q", nil, false))

	assert.Equal(t, []string{"par", "tial"}, frags)
	assert.ErrorIs(t, err, cause)
}

func TestSentinel(t *testing.T) {
	assert.True(t, IsSentinel(Sentinel(errors.New("x"))))
	assert.False(t, IsSentinel("normal text"))
}

// 用真实的 eino-ext openai 组件对接兼容 OpenAI 协议的测试服务器
func newSDKClient(t *testing.T, srv *testutil.OpenAIServer) *Client {
	t.Helper()
	ctx := context.Background()
	mk := func(name string) *openai.ChatModel {
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:     "test-key",
			BaseURL:    "https://api.deepseek.com",
			Model:      name,
			HTTPClient: testutil.NewTestClient(srv.Server),
		})
		require.NoError(t, err)
		return cm
	}
	return New(mk("deepseek-chat"), mk("deepseek-reasoner"), Options{})
}

func TestClient_SDKComplete(t *testing.T) {
	srv := testutil.NewOpenAIServer(t)
	srv.Reply = "  hi there \n"
	c := newSDKClient(t, srv)

	reply, err := c.Complete(context.Background(), "hello", nil, true)

	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "deepseek-reasoner", reqs[0].Model)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, "system", reqs[0].Messages[0].Role)
	assert.Equal(t, "hello", reqs[0].Messages[1].Content)
}

func TestClient_SDKStream(t *testing.T) {
	srv := testutil.NewOpenAIServer(t)
	srv.Chunks = []string{"你", "好", "!"}
	c := newSDKClient(t, srv)

	frags, err := drain(t, c.StreamComplete(context.Background(), "hello", nil, false))

	require.NoError(t, err)
	assert.Equal(t, []string{"你", "好", "!"}, frags)
	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Stream)
	assert.Equal(t, "deepseek-chat", reqs[0].Model)
}

func TestClient_SDKUpstreamFailure(t *testing.T) {
	srv := testutil.NewOpenAIServer(t)
	srv.Status = http.StatusInternalServerError
	c := newSDKClient(t, srv)

	_, err := c.Complete(context.Background(), "hello", nil, false)
	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)

	frags, err := drain(t, c.StreamComplete(context.Background(), "hello", nil, false))
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, IsSentinel(frags[0]))
}
