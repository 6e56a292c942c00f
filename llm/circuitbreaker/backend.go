package circuitbreaker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/types"
)

// Registry 按端点（provider + base url）复用熔断器，
// 同一端点的所有参与者共享一个熔断状态。
type Registry struct {
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry 创建熔断器注册表
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get 返回名称对应的熔断器，不存在时创建
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.config, r.logger)
		r.breakers[name] = b
	}
	return b
}

// States 返回所有熔断器的当前状态
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.Name()] = b.State()
	}
	return out
}

// WrapBackend 让后端调用经过熔断器。熔断打开时返回 PROVIDER_ERROR，不访问上游。
func WrapBackend(inner llm.ModelBackend, b *Breaker, provider string) llm.ModelBackend {
	if b == nil {
		return inner
	}
	return &backend{inner: inner, breaker: b, provider: provider}
}

type backend struct {
	inner    llm.ModelBackend
	breaker  *Breaker
	provider string
}

func (w *backend) rejected(err error) error {
	return types.NewError(types.ErrProviderError, "provider temporarily unavailable").
		WithProvider(w.provider).
		WithCause(err)
}

func (w *backend) Generate(ctx context.Context, history []llm.Message, instructions string) (string, error) {
	if err := w.breaker.Allow(); err != nil {
		return "", w.rejected(err)
	}
	text, err := w.inner.Generate(ctx, history, instructions)
	w.breaker.Record(err)
	return text, err
}

// GenerateStream 以流的最终结果记录熔断状态
func (w *backend) GenerateStream(ctx context.Context, history []llm.Message, instructions string) (<-chan llm.Fragment, error) {
	if err := w.breaker.Allow(); err != nil {
		return nil, w.rejected(err)
	}
	in, err := w.inner.GenerateStream(ctx, history, instructions)
	if err != nil {
		w.breaker.Record(err)
		return nil, err
	}

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		var streamErr error
		recorded := false
		defer func() {
			if !recorded {
				w.breaker.Record(streamErr)
			}
		}()
		for f := range in {
			if f.Err != nil {
				streamErr = f.Err
			}
			select {
			case out <- f:
			case <-ctx.Done():
				// 消费方放弃，不计入后端健康
				w.breaker.Record(ctx.Err())
				recorded = true
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}
