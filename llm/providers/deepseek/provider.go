package deepseek

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/llm/providers"
	"github.com/BaSui01/agentroom/llm/providers/openaicompat"
)

// DeepSeekProvider 实现 DeepSeek LLM 提供者.
// DeepSeek 使用 OpenAI 兼容的 API 格式.
type DeepSeekProvider struct {
	*openaicompat.Provider
}

// NewDeepSeekProvider 创建新的 DeepSeek 提供者实例.
func NewDeepSeekProvider(cfg providers.DeepSeekConfig, logger *zap.Logger) *DeepSeekProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}

	return &DeepSeekProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:   "deepseek",
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			FallbackModel:  "deepseek-chat",
			Timeout:        cfg.Timeout,
			HTTPClient:     cfg.HTTPClient,
			EndpointPath:   "/chat/completions",
			ModelsEndpoint: "/models",
		}, logger),
	}
}
