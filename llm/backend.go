package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/agentroom/types"
)

// DefaultMaxTokens 单次生成的默认 Token 上限。
const DefaultMaxTokens = 1000

// Fragment 是流式生成的一个文本片段。Err 非空时为序列的最后一个元素。
type Fragment struct {
	Text string
	Err  error
}

// ModelBackend 把 (历史消息, 人设指令) 转换为生成文本。
// 失败统一为 PROVIDER_ERROR 或 EMPTY_RESULT，接口本身不做重试。
type ModelBackend interface {
	Generate(ctx context.Context, history []Message, instructions string) (string, error)

	// GenerateStream 每次调用返回一个新的有限序列，通道关闭即结束。
	GenerateStream(ctx context.Context, history []Message, instructions string) (<-chan Fragment, error)
}

// GenerateFunc 是 ModelBackend.Generate 的函数形式。
type GenerateFunc func(ctx context.Context, history []Message, instructions string) (string, error)

// BackendOptions 控制 Provider 适配后的请求参数。
type BackendOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewBackend 将任意 Provider 适配为 ModelBackend。
// 人设指令作为首条 system 消息发送。
func NewBackend(provider Provider, opts BackendOptions) ModelBackend {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &providerBackend{provider: provider, opts: opts}
}

type providerBackend struct {
	provider Provider
	opts     BackendOptions
}

func (b *providerBackend) request(history []Message, instructions string) *ChatRequest {
	msgs := make([]Message, 0, len(history)+1)
	if strings.TrimSpace(instructions) != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: instructions})
	}
	msgs = append(msgs, history...)
	return &ChatRequest{
		Model:       b.opts.Model,
		Messages:    msgs,
		MaxTokens:   b.opts.MaxTokens,
		Temperature: float32(b.opts.Temperature),
		Timeout:     b.opts.Timeout,
	}
}

func (b *providerBackend) Generate(ctx context.Context, history []Message, instructions string) (string, error) {
	resp, err := b.provider.Completion(ctx, b.request(history, instructions))
	if err != nil {
		return "", ProviderError(err, b.provider.Name())
	}
	text := strings.TrimSpace(resp.FirstContent())
	if text == "" {
		return "", EmptyResult(b.provider.Name())
	}
	return text, nil
}

func (b *providerBackend) GenerateStream(ctx context.Context, history []Message, instructions string) (<-chan Fragment, error) {
	chunks, err := b.provider.Stream(ctx, b.request(history, instructions))
	if err != nil {
		return nil, ProviderError(err, b.provider.Name())
	}

	out := make(chan Fragment, 16)
	go func() {
		defer close(out)
		gotContent := false
		for chunk := range chunks {
			if chunk.Err != nil {
				sendFragment(ctx, out, Fragment{Err: ProviderError(chunk.Err, b.provider.Name())})
				return
			}
			if chunk.Delta.Content == "" {
				continue
			}
			if strings.TrimSpace(chunk.Delta.Content) != "" {
				gotContent = true
			}
			if !sendFragment(ctx, out, Fragment{Text: chunk.Delta.Content}) {
				return
			}
		}
		if ctx.Err() != nil {
			sendFragment(ctx, out, Fragment{Err: ProviderError(ctx.Err(), b.provider.Name())})
			return
		}
		if !gotContent {
			sendFragment(ctx, out, Fragment{Err: EmptyResult(b.provider.Name())})
		}
	}()
	return out, nil
}

// SingleFragment 把一次 Generate 调用包装为单片段序列，
// 供不支持原生流式的实现复用。
func SingleFragment(ctx context.Context, generate GenerateFunc, history []Message, instructions string) <-chan Fragment {
	out := make(chan Fragment, 1)
	go func() {
		defer close(out)
		text, err := generate(ctx, history, instructions)
		if err != nil {
			out <- Fragment{Err: err}
			return
		}
		out <- Fragment{Text: text}
	}()
	return out
}

// sendFragment 在 ctx 取消时放弃发送。错误片段发送后返回 false，表示序列结束。
func sendFragment(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return f.Err == nil
	case <-ctx.Done():
		return false
	}
}

// ProviderError 将任意上游错误收敛为 PROVIDER_ERROR，保留可重试性与 HTTP 状态。
// 已经是 *types.Error 的错误原样返回。
func ProviderError(err error, provider string) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	out := types.NewError(types.ErrProviderError, err.Error()).
		WithProvider(provider).
		WithCause(err)
	var llmErr *Error
	if errors.As(err, &llmErr) {
		out.WithRetryable(llmErr.Retryable).WithHTTPStatus(llmErr.HTTPStatus)
		if llmErr.Provider != "" {
			out.WithProvider(llmErr.Provider)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.WithRetryable(true)
	}
	return out
}

// EmptyResult 返回上游成功但无可用内容时的错误。
func EmptyResult(provider string) error {
	return types.NewError(types.ErrEmptyResult, "model returned no content").WithProvider(provider)
}
