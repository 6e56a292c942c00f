package retry

import (
	"context"

	"github.com/BaSui01/agentroom/llm"
)

// WrapBackend 为 ModelBackend 加上显式重试。
// Generate 整体重试；GenerateStream 只重试建立流的调用，已开始输出的流不会重放。
func WrapBackend(inner llm.ModelBackend, r *Retryer) llm.ModelBackend {
	if r == nil || r.policy.MaxRetries == 0 {
		return inner
	}
	return &backend{inner: inner, retryer: r}
}

type backend struct {
	inner   llm.ModelBackend
	retryer *Retryer
}

func (b *backend) Generate(ctx context.Context, history []llm.Message, instructions string) (string, error) {
	return Do(ctx, b.retryer, func(ctx context.Context) (string, error) {
		return b.inner.Generate(ctx, history, instructions)
	})
}

func (b *backend) GenerateStream(ctx context.Context, history []llm.Message, instructions string) (<-chan llm.Fragment, error) {
	return Do(ctx, b.retryer, func(ctx context.Context) (<-chan llm.Fragment, error) {
		return b.inner.GenerateStream(ctx, history, instructions)
	})
}
