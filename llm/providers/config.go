package providers

import (
	"net/http"
	"time"
)

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
// HTTPClient 为空时由各 Provider 自行构造加固客户端；
// 需要经出口代理时由解析器注入。
type BaseProviderConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	HTTPClient *http.Client  `json:"-" yaml:"-"`
}

// OpenAIConfig OpenAI Provider 配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// DeepSeekConfig DeepSeek Provider 配置
type DeepSeekConfig struct {
	BaseProviderConfig `yaml:",inline"`
}

// OllamaConfig Ollama 本地模型配置，无需凭据
type OllamaConfig struct {
	BaseProviderConfig `yaml:",inline"`
	KeepAlive          string `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty"`
}

// GeminiConfig Google Gemini Provider 配置
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
}
