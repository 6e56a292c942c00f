package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/types"
)

// Reply 是 MockBackend 的一次预设结果.
// Fragments 为空时流式输出整段 Text；Err 非空时在片段之后发送。
type Reply struct {
	Text      string
	Fragments []string
	Err       error
}

// BackendCall 记录一次生成调用
type BackendCall struct {
	History      []llm.Message
	Instructions string
	Stream       bool
}

// MockBackend 是 llm.ModelBackend 的模拟实现，按顺序消费预设结果.
type MockBackend struct {
	mu       sync.Mutex
	replies  []Reply
	fallback Reply
	fn       llm.GenerateFunc
	calls    []BackendCall
}

// NewMockBackend 创建 MockBackend，预设用尽后返回 "Mock reply"
func NewMockBackend() *MockBackend {
	return &MockBackend{fallback: Reply{Text: "Mock reply"}}
}

// WithReply 设置默认回复
func (m *MockBackend) WithReply(text string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = Reply{Text: text}
	return m
}

// WithError 设置默认错误
func (m *MockBackend) WithError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = Reply{Err: err}
	return m
}

// WithReplies 追加按顺序消费的预设结果
func (m *MockBackend) WithReplies(replies ...Reply) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

// WithGenerateFunc 设置自定义生成函数，优先于预设结果
func (m *MockBackend) WithGenerateFunc(fn llm.GenerateFunc) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

func (m *MockBackend) next(history []llm.Message, instructions string, stream bool) (Reply, llm.GenerateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, BackendCall{
		History:      append([]llm.Message(nil), history...),
		Instructions: instructions,
		Stream:       stream,
	})
	if m.fn != nil {
		return Reply{}, m.fn
	}
	if len(m.replies) == 0 {
		return m.fallback, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

// Generate 实现 llm.ModelBackend
func (m *MockBackend) Generate(ctx context.Context, history []llm.Message, instructions string) (string, error) {
	r, fn := m.next(history, instructions, false)
	if fn != nil {
		return fn(ctx, history, instructions)
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// GenerateStream 实现 llm.ModelBackend
func (m *MockBackend) GenerateStream(ctx context.Context, history []llm.Message, instructions string) (<-chan llm.Fragment, error) {
	r, fn := m.next(history, instructions, true)
	if fn != nil {
		return llm.SingleFragment(ctx, fn, history, instructions), nil
	}

	fragments := r.Fragments
	if len(fragments) == 0 && r.Text != "" {
		fragments = []string{r.Text}
	}
	if len(fragments) == 0 && r.Err != nil {
		return nil, r.Err
	}

	out := make(chan llm.Fragment, len(fragments)+1)
	for _, f := range fragments {
		out <- llm.Fragment{Text: f}
	}
	if r.Err != nil {
		out <- llm.Fragment{Err: r.Err}
	}
	close(out)
	return out, nil
}

// Calls 返回调用记录
func (m *MockBackend) Calls() []BackendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BackendCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- MockResolver ---

// MockResolver 按 provider 名称返回预设后端
type MockResolver struct {
	mu       sync.Mutex
	backends map[string]llm.ModelBackend
	errs     map[string]error
	fallback llm.ModelBackend
	resolved []types.BackendSpec
}

// NewMockResolver 创建解析器，未注册的 provider 使用 fallback
func NewMockResolver(fallback llm.ModelBackend) *MockResolver {
	return &MockResolver{
		backends: make(map[string]llm.ModelBackend),
		errs:     make(map[string]error),
		fallback: fallback,
	}
}

// WithBackend 为 provider 注册后端
func (r *MockResolver) WithBackend(provider string, b llm.ModelBackend) *MockResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[provider] = b
	return r
}

// WithError 使 provider 解析失败
func (r *MockResolver) WithError(provider string, err error) *MockResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[provider] = err
	return r
}

// Resolve 实现 BackendResolver
func (r *MockResolver) Resolve(_ context.Context, spec types.BackendSpec) (llm.ModelBackend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, spec)
	if err, ok := r.errs[spec.Provider]; ok {
		return nil, err
	}
	if b, ok := r.backends[spec.Provider]; ok {
		return b, nil
	}
	if r.fallback == nil {
		return nil, types.Errorf(types.ErrUnsupportedProvider, "unsupported provider %q", spec.Provider)
	}
	return r.fallback, nil
}

// Model 返回用于 Token 计数的模型名称
func (r *MockResolver) Model(spec types.BackendSpec) string {
	if spec.Model != "" {
		return spec.Model
	}
	return "mock-model"
}

// Resolved 返回已解析过的后端描述
func (r *MockResolver) Resolved() []types.BackendSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.BackendSpec(nil), r.resolved...)
}

// --- RecordingSink ---

// RecordingSink 记录发布的事件
type RecordingSink struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

// NewRecordingSink 创建事件记录器
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// WithError 使 Publish 在记录后返回 err
func (s *RecordingSink) WithError(err error) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Publish 实现 EventSink
func (s *RecordingSink) Publish(_ context.Context, _ uint, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

// Events 返回全部事件
func (s *RecordingSink) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.events...)
}

// Messages 返回 message 事件的载荷
func (s *RecordingSink) Messages() []types.MessagePayload {
	var out []types.MessagePayload
	for _, ev := range s.Events() {
		if p, ok := ev.Data.(types.MessagePayload); ok {
			out = append(out, p)
		}
	}
	return out
}

// Deltas 返回 delta 事件的载荷
func (s *RecordingSink) Deltas() []types.DeltaPayload {
	var out []types.DeltaPayload
	for _, ev := range s.Events() {
		if p, ok := ev.Data.(types.DeltaPayload); ok {
			out = append(out, p)
		}
	}
	return out
}
