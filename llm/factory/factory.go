// Package factory provides a centralized factory for creating LLM Provider
// instances by name. It imports all provider sub-packages and maps string
// names to their constructors, breaking the import cycle that would occur
// if this logic lived in the llm package directly.
package factory

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/internal/tlsutil"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/llm/circuitbreaker"
	"github.com/BaSui01/agentroom/llm/providers"
	"github.com/BaSui01/agentroom/llm/providers/deepseek"
	"github.com/BaSui01/agentroom/llm/providers/gemini"
	"github.com/BaSui01/agentroom/llm/providers/ollama"
	"github.com/BaSui01/agentroom/llm/providers/openai"
	"github.com/BaSui01/agentroom/llm/providers/openaicompat"
	"github.com/BaSui01/agentroom/llm/retry"
	"github.com/BaSui01/agentroom/types"
)

// Built-in provider names.
const (
	ProviderOpenAI           = "openai"
	ProviderDeepSeek         = "deepseek"
	ProviderOllama           = "ollama"
	ProviderGemini           = "gemini"
	ProviderOpenAICompatible = "openai-compatible"
)

// 需要凭据的 Provider
var credentialRequired = map[string]bool{
	ProviderOpenAI:   true,
	ProviderDeepSeek: true,
	ProviderGemini:   true,
}

// ProviderConfig is the generic configuration accepted by the factory function.
type ProviderConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	HTTPClient *http.Client  `json:"-" yaml:"-"`
}

// NewProviderFromConfig creates a Provider instance based on the provider name
// and a generic ProviderConfig. Any name that is not built in becomes a generic
// OpenAI-compatible provider and requires base_url.
func NewProviderFromConfig(ctx context.Context, name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}

	switch name {
	case ProviderOpenAI:
		return openai.NewOpenAIProvider(providers.OpenAIConfig{BaseProviderConfig: base}, logger), nil

	case ProviderDeepSeek:
		return deepseek.NewDeepSeekProvider(providers.DeepSeekConfig{BaseProviderConfig: base}, logger), nil

	case ProviderOllama:
		return ollama.NewOllamaProvider(providers.OllamaConfig{BaseProviderConfig: base}, logger), nil

	case ProviderGemini:
		p, err := gemini.NewGeminiProvider(ctx, providers.GeminiConfig{BaseProviderConfig: base}, logger)
		if err != nil {
			return nil, types.Errorf(types.ErrConfiguration, "gemini client: %v", err).WithCause(err)
		}
		return p, nil

	default:
		// 通用 OpenAI 兼容提供商：任意名称 + base_url 即可接入
		if cfg.BaseURL == "" {
			return nil, types.Errorf(types.ErrUnsupportedProvider,
				"unknown provider %q: built-in provider not found, and base_url is required for generic OpenAI-compatible provider", name)
		}
		logger.Info("creating generic OpenAI-compatible provider",
			zap.String("provider", name),
			zap.String("base_url", cfg.BaseURL))
		return openaicompat.New(openaicompat.Config{
			ProviderName: ProviderOpenAICompatible,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			HTTPClient:   cfg.HTTPClient,
		}, logger), nil
	}
}

// SupportedProviders returns the list of built-in provider names.
// Any name not in this list will be treated as a generic OpenAI-compatible
// provider, requiring base_url in the configuration.
func SupportedProviders() []string {
	names := []string{ProviderOpenAI, ProviderDeepSeek, ProviderOllama, ProviderGemini}
	sort.Strings(names)
	return names
}

// Resolver 将参与者的后端描述解析为可调用的 ModelBackend.
// 每次解析都构造新实例，不做缓存；只有熔断状态按端点跨解析共享。
type Resolver struct {
	cfg      config.LLMConfig
	logger   *zap.Logger
	retryer  *retry.Retryer
	breakers *circuitbreaker.Registry
}

// NewResolver creates a Resolver backed by the llm configuration defaults.
func NewResolver(cfg config.LLMConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "backend_resolver"))

	r := &Resolver{cfg: cfg, logger: logger}
	if cfg.MaxRetries > 0 {
		p := retry.DefaultPolicy()
		p.MaxRetries = cfg.MaxRetries
		if cfg.RetryDelay > 0 {
			p.InitialDelay = cfg.RetryDelay
		}
		r.retryer = retry.NewRetryer(p, logger)
	}
	if cfg.BreakerThreshold > 0 {
		r.breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("provider circuit state changed",
					zap.String("endpoint", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}, logger)
	}
	return r
}

// BreakerStates 返回各端点的熔断状态；熔断关闭时返回 nil.
func (r *Resolver) BreakerStates() map[string]string {
	if r.breakers == nil {
		return nil
	}
	states := r.breakers.States()
	out := make(map[string]string, len(states))
	for name, s := range states {
		out[name] = s.String()
	}
	return out
}

// ProviderName 返回规范化后的 Provider 名称，空值取默认 Provider.
func (r *Resolver) ProviderName(spec types.BackendSpec) string {
	name := strings.ToLower(strings.TrimSpace(spec.Provider))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(r.cfg.DefaultProvider))
	}
	return name
}

// Model 返回该后端实际使用的模型名称.
func (r *Resolver) Model(spec types.BackendSpec) string {
	if spec.Model != "" {
		return spec.Model
	}
	if pc, ok := r.defaults(r.ProviderName(spec)); ok {
		return pc.Model
	}
	return ""
}

func (r *Resolver) defaults(name string) (config.ProviderConfig, bool) {
	switch name {
	case ProviderOpenAI:
		return r.cfg.OpenAI, true
	case ProviderDeepSeek:
		return r.cfg.DeepSeek, true
	case ProviderOllama:
		return r.cfg.Ollama, true
	case ProviderGemini:
		return r.cfg.Gemini, true
	}
	return config.ProviderConfig{}, false
}

// Resolve 解析后端描述.
// 未知 Provider 且未给出 base_url 返回 UNSUPPORTED_PROVIDER；
// 缺少必需凭据或代理配置无效返回 CONFIGURATION_ERROR。
func (r *Resolver) Resolve(ctx context.Context, spec types.BackendSpec) (llm.ModelBackend, error) {
	name := r.ProviderName(spec)
	if name == "" {
		return nil, types.NewError(types.ErrConfiguration, "no provider specified and no default provider configured")
	}

	defaults, builtin := r.defaults(name)
	if !builtin && strings.TrimSpace(spec.BaseURL) == "" {
		return nil, types.Errorf(types.ErrUnsupportedProvider, "unsupported provider %q", spec.Provider)
	}

	pc := ProviderConfig{
		APIKey:  firstNonEmpty(spec.APIKey, defaults.APIKey),
		BaseURL: firstNonEmpty(spec.BaseURL, defaults.BaseURL),
		Model:   firstNonEmpty(spec.Model, defaults.Model),
		Timeout: r.cfg.Timeout,
	}
	if credentialRequired[name] && pc.APIKey == "" {
		return nil, types.Errorf(types.ErrConfiguration, "missing api key for provider %q", name).WithProvider(name)
	}

	if spec.UseProxy {
		if r.cfg.ProxyURL == "" {
			return nil, types.Errorf(types.ErrConfiguration, "use_proxy is set but no proxy url is configured").WithProvider(name)
		}
		client, err := tlsutil.NewHTTPClient(r.cfg.Timeout, r.cfg.ProxyURL)
		if err != nil {
			return nil, types.Errorf(types.ErrConfiguration, "invalid proxy url: %v", err).WithProvider(name).WithCause(err)
		}
		pc.HTTPClient = client
	}

	provider, err := NewProviderFromConfig(ctx, name, pc, r.logger)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("backend resolved",
		zap.String("provider", provider.Name()),
		zap.String("model", pc.Model),
		zap.Bool("use_proxy", spec.UseProxy))

	backend := llm.NewBackend(provider, llm.BackendOptions{
		Model:       pc.Model,
		Temperature: spec.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
		Timeout:     r.cfg.Timeout,
	})
	backend = retry.WrapBackend(backend, r.retryer)
	if r.breakers != nil {
		backend = circuitbreaker.WrapBackend(backend, r.breakers.Get(name+"|"+pc.BaseURL), name)
	}
	return backend, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
