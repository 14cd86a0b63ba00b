package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/service/history"
	"github.com/ashwinyue/next-chat/internal/service/types"
	"github.com/cloudwego/eino/schema"
)

// State 一次对话交换所处的阶段
type State int

const (
	StateInit State = iota
	StateAssemblingHistory
	StateStreaming
	StateFinalizing
	StateDone
	StateDoneWithWarning
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAssemblingHistory:
		return "ASSEMBLING_HISTORY"
	case StateStreaming:
		return "STREAMING"
	case StateFinalizing:
		return "FINALIZING"
	case StateDone:
		return "DONE"
	case StateDoneWithWarning:
		return "DONE_WITH_WARNING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrStreamIdle 上游在限定时间内没有新的片段
var ErrStreamIdle = errors.New("upstream stream idle timeout")

// Forwarder 把片段写给客户端
// 返回错误表示客户端已不可写，之后不会再调用
type Forwarder func(fragment string) error

// Result 一次交换的结果
type Result struct {
	State        State
	Content      string // 累积的完整回复
	Fragments    int
	Disconnected bool  // 客户端中途断开或写失败
	UpstreamErr  error // 上游流中途出错
	PersistErr   error // 回复落库失败
}

// Exchange 一次进行中的对话交换
// 上游流绑定请求 context；累积与落库不受请求取消影响
type Exchange struct {
	svc       *Service
	sessionID string
	requestID string
	model     string
	userAt    time.Time

	state  State
	stream *schema.StreamReader[string]
	cancel context.CancelFunc
	ctx    context.Context
}

func (s *Service) newExchange(ctx context.Context, sessionID string) *Exchange {
	streamCtx, cancel := context.WithCancel(ctx)
	e := &Exchange{
		svc:       s,
		sessionID: sessionID,
		requestID: types.RequestID(ctx),
		ctx:       streamCtx,
		cancel:    cancel,
	}
	e.transition(StateInit)
	return e
}

func (e *Exchange) start(message string, prior []history.Turn, deepThink bool) {
	e.model = e.svc.client.ModelName(deepThink)
	e.stream = e.svc.client.StreamComplete(e.ctx, message, prior, deepThink)
}

// State 当前阶段
func (e *Exchange) State() State {
	return e.state
}

// Model 本次使用的模型名
func (e *Exchange) Model() string {
	return e.model
}

// SessionID 所属会话，无会话时为空
func (e *Exchange) SessionID() string {
	return e.sessionID
}

// Relay 逐片段转发并累积，流结束后落库
// 无论流如何结束（正常、上游出错、客户端断开），都会进入落库阶段
func (e *Exchange) Relay(ctx context.Context, forward Forwarder) Result {
	defer e.cancel()

	var (
		res      Result
		acc      strings.Builder
		idleHit  atomic.Bool
		idleStop = func() {}
	)

	e.transition(StateStreaming)
	resetIdle := e.idleTimer(&idleHit, &idleStop)

	for {
		frag, err := e.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// 请求被取消时上游会随之报 context.Canceled，归为客户端断开
			if ctx.Err() != nil && !idleHit.Load() {
				res.Disconnected = true
				log.Printf("[chat] %s client gone after %d fragments, upstream cancelled", e.requestID, res.Fragments)
				break
			}
			if idleHit.Load() {
				err = fmt.Errorf("%w: %v", ErrStreamIdle, err)
			}
			res.UpstreamErr = err
			log.Printf("[chat] %s upstream stream failed after %d fragments: %v", e.requestID, res.Fragments, err)
			break
		}
		resetIdle()

		delivered := ctx.Err() == nil && forward(frag) == nil
		acc.WriteString(frag)
		res.Fragments++
		if !delivered {
			res.Disconnected = true
			log.Printf("[chat] %s client gone after %d fragments, stop forwarding", e.requestID, res.Fragments)
			break
		}
	}
	idleStop()
	e.stream.Close()
	e.cancel()

	e.transition(StateFinalizing)
	res.Content = acc.String()
	res.PersistErr = e.finalize(ctx, res.Content)
	if res.PersistErr != nil {
		res.State = StateDoneWithWarning
	} else {
		res.State = StateDone
	}
	e.transition(res.State)
	return res
}

// idleTimer 启动空闲计时器，返回每收到片段时调用的重置函数
func (e *Exchange) idleTimer(hit *atomic.Bool, stop *func()) func() {
	d := time.Duration(e.svc.cfg.StreamIdleTimeout) * time.Second
	if d <= 0 {
		return func() {}
	}
	timer := time.AfterFunc(d, func() {
		hit.Store(true)
		e.cancel()
	})
	*stop = func() { timer.Stop() }
	return func() { timer.Reset(d) }
}

// finalize 写入助手消息并刷新会话更新时间
// 使用与请求取消解耦的 context，让断开连接后仍能拿到新的数据库连接完成写入
func (e *Exchange) finalize(ctx context.Context, content string) error {
	if e.sessionID == "" || content == "" {
		return nil
	}

	timeout := time.Duration(e.svc.cfg.FinalizeTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultFinalizeTimeout
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	// 助手消息必须晚于同一轮的用户消息
	at := e.svc.now()
	if !at.After(e.userAt) {
		at = e.userAt.Add(time.Microsecond)
	}

	err := e.svc.store.AppendMessage(fctx, &model.Message{
		SessionID: e.sessionID,
		Role:      model.RoleAssistant,
		Content:   content,
		CreatedAt: at,
	})
	if err != nil {
		log.Printf("[chat] %s failed to persist reply for session %s (%d bytes): %v",
			e.requestID, e.sessionID, len(content), err)
		return err
	}
	e.svc.cache.Append(fctx, e.sessionID, history.Turn{Role: model.RoleAssistant, Content: content})
	return nil
}

func (e *Exchange) transition(s State) {
	e.state = s
	log.Printf("[chat] %s session=%s state=%s", e.requestID, e.sessionIDOrDash(), s)
}

func (e *Exchange) sessionIDOrDash() string {
	if e.sessionID == "" {
		return "-"
	}
	return e.sessionID
}
