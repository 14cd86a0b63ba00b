package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/handler"
	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service"
	"github.com/ashwinyue/next-chat/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	svc    *service.Services
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := testutil.NewTestConfig(t)
	cfg.Server.StaticDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.StaticDir, "index.html"), []byte("<html>chat</html>"), 0o644))
	for _, m := range mutate {
		m(cfg)
	}

	db := testutil.NewTestDBWithConfig(t, cfg)
	svc, err := service.NewServices(repository.NewRepositories(db.DB), cfg, nil)
	require.NoError(t, err)

	return &testServer{engine: SetupRouter(handler.NewHandlers(svc), cfg.Server.StaticDir), svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) messageCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, s.svc.Repos.DB.Model(&model.Message{}).Count(&count).Error)
	return count
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type sessionBody struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DeepThink bool   `json:"deep_think"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type messageBody struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func (s *testServer) createSession(t *testing.T, body string) sessionBody {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusOK, w.Code)
	var sess sessionBody
	decode(t, w, &sess)
	return sess
}

func (s *testServer) messages(t *testing.T, id string) []messageBody {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []messageBody `json:"messages"`
	}
	decode(t, w, &body)
	return body.Messages
}

func TestIndexAndHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat")

	w = s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","mode":"offline"}`, w.Body.String())
}

func TestSessionExchangeScenario(t *testing.T) {
	s := newTestServer(t)

	sess := s.createSession(t, `{}`)
	assert.Equal(t, "新会话", sess.Title)
	assert.False(t, sess.DeepThink)
	assert.Equal(t, sess.CreatedAt, sess.UpdatedAt)

	w := s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"`+sess.ID+`","message":"hello"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "(演示模式) 你说：hello", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got sessionBody
	decode(t, w, &got)
	assert.Equal(t, "hello", got.Title)

	msgs := s.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, messageBody{Role: "user", Content: "hello", CreatedAt: msgs[0].CreatedAt}, msgs[0])
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "(演示模式) 你说：hello", msgs[1].Content)
}

func TestChat(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/chat", `{"message":"","history":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"message 不能为空"}`, w.Body.String())
	assert.Zero(t, s.messageCount(t))

	w = s.do(t, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"请求体格式错误"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/chat", `{"message":"hi","history":[{"role":"user","content":"hi"}, 5]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reply":"(演示模式) 你说：hi","model":"demo"}`, w.Body.String())
	assert.Zero(t, s.messageCount(t))
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/chat_stream", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "message 不能为空", w.Body.String())

	w = s.do(t, http.MethodPost, "/api/chat_stream", `{"message":"yo","deep_think":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "(演示模式) 你说：yo", w.Body.String())
	assert.Zero(t, s.messageCount(t))
}

func TestChatStreamV2_Errors(t *testing.T) {
	s := newTestServer(t)
	sess := s.createSession(t, `{"title":"t"}`)

	w := s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "session_id 不能为空", w.Body.String())

	w = s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"`+sess.ID+`","message":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"missing","message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "会话不存在", w.Body.String())

	assert.Zero(t, s.messageCount(t))
}

func TestMalformedBodies(t *testing.T) {
	s := newTestServer(t)
	sess := s.createSession(t, "")
	assert.Equal(t, "新会话", sess.Title)

	w := s.do(t, http.MethodPost, "/api/chat", `{"message":"hi","deep_think":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"请求体格式错误"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/chat_stream", `{"message":["hi"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "请求体格式错误", w.Body.String())

	w = s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"`+sess.ID+`","message":42}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "请求体格式错误", w.Body.String())

	w = s.do(t, http.MethodPatch, "/api/sessions/"+sess.ID, `{"deep_think":"on"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	var got sessionBody
	decode(t, w, &got)
	assert.False(t, got.DeepThink)
	assert.Zero(t, s.messageCount(t))
}

func TestSessionCRUD(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())

	first := s.createSession(t, `{"title":"first","deep_think":true}`)
	assert.True(t, first.DeepThink)
	second := s.createSession(t, `{"title":"second"}`)

	w = s.do(t, http.MethodPatch, "/api/sessions/"+first.ID, `{"title":"renamed"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/sessions", "")
	var list struct {
		Sessions []sessionBody `json:"sessions"`
	}
	decode(t, w, &list)
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, first.ID, list.Sessions[0].ID)
	assert.Equal(t, "renamed", list.Sessions[0].Title)
	assert.Equal(t, second.ID, list.Sessions[1].ID)

	w = s.do(t, http.MethodPatch, "/api/sessions/"+first.ID, `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/sessions/missing", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"会话不存在"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodDelete, "/api/sessions/"+first.ID, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
	}
	w = s.do(t, http.MethodGet, "/api/sessions/"+first.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/api/sessions/"+first.ID+"/messages", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCascadesMessages(t *testing.T) {
	s := newTestServer(t)
	sess := s.createSession(t, `{}`)

	s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"`+sess.ID+`","message":"a"}`)
	require.EqualValues(t, 2, s.messageCount(t))

	s.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	assert.Zero(t, s.messageCount(t))
}

func withUpstream(srv *testutil.OpenAIServer) func(*config.Config) {
	return func(cfg *config.Config) {
		cfg.AI.Provider = "deepseek"
		cfg.AI.DeepSeek.APIKey = "test-key"
		cfg.AI.DeepSeek.BaseURL = srv.URL
	}
}

func TestUpstreamStreamingExchange(t *testing.T) {
	srv := testutil.NewOpenAIServer(t)
	srv.Chunks = []string{"Hello", ", ", "world"}
	s := newTestServer(t, withUpstream(srv))

	w := s.do(t, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok","mode":"online"}`, w.Body.String())

	sess := s.createSession(t, `{"deep_think":true}`)
	w = s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"`+sess.ID+`","message":"hi"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello, world", w.Body.String())

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "deepseek-reasoner", reqs[0].Model)
	assert.True(t, reqs[0].Stream)

	msgs := s.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello, world", msgs[1].Content)
}

func TestUpstreamFailure(t *testing.T) {
	srv := testutil.NewOpenAIServer(t)
	srv.Status = http.StatusInternalServerError
	s := newTestServer(t, withUpstream(srv))

	w := s.do(t, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "LLM 调用失败", body["error"])
	assert.NotEmpty(t, body["detail"])

	// 流式接口把失败降级为一个哨兵片段，状态码仍是 200
	sess := s.createSession(t, `{}`)
	w = s.do(t, http.MethodPost, "/api/chat_stream_v2", `{"session_id":"`+sess.ID+`","message":"hi"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "[stream-error]"))

	msgs := s.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, w.Body.String(), msgs[1].Content)
}
