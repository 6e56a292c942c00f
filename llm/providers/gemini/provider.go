package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BaSui01/agentroom/internal/tlsutil"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/llm/providers"
)

const (
	providerName   = "gemini"
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 60 * time.Second
)

// GeminiProvider 基于 Google GenAI SDK 实现 Gemini 提供者.
// system 消息映射为 SystemInstruction，assistant 映射为 model 角色.
type GeminiProvider struct {
	client *genai.Client
	cfg    providers.GeminiConfig
	logger *zap.Logger
}

// NewGeminiProvider 创建新的 Gemini 提供者实例.
func NewGeminiProvider(ctx context.Context, cfg providers.GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = tlsutil.SecureHTTPClient(cfg.Timeout)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("provider", providerName)),
	}, nil
}

func (p *GeminiProvider) Name() string { return providerName }

func (p *GeminiProvider) model(req *llm.ChatRequest) string {
	return strings.TrimPrefix(providers.ChooseModel(req, p.cfg.Model, defaultModel), "models/")
}

// HealthCheck 通过查询模型元数据确认凭据与网络可用
func (p *GeminiProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Models.Get(ctx, p.model(nil), nil)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, mapError(err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion 发起非流式生成请求
func (p *GeminiProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	cfg, contents := convertRequest(req)
	model := p.model(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, mapError(err)
	}

	text, finish := candidateText(resp)
	out := &llm.ChatResponse{
		ID:       resp.ResponseID,
		Provider: providerName,
		Model:    model,
		Choices: []llm.ChatChoice{{
			FinishReason: finish,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		}},
		CreatedAt: resp.CreateTime,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.ChatUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Stream 发起流式生成请求
func (p *GeminiProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	cfg, contents := convertRequest(req)
	model := p.model(req)

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			chunk := llm.StreamChunk{Provider: providerName, Model: model}
			if err != nil {
				chunk.Err = mapError(err)
			} else {
				text, finish := candidateText(resp)
				chunk.ID = resp.ResponseID
				chunk.Delta = llm.Message{Role: llm.RoleAssistant, Content: text}
				chunk.FinishReason = finish
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
			if chunk.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}

// convertRequest 将统一请求转换为 GenAI 的 contents 与生成配置.
// 连续同角色消息合并为一个 Content 的多个 Part.
func convertRequest(req *llm.ChatRequest) (*genai.GenerateContentConfig, []*genai.Content) {
	cfg := &genai.GenerateContentConfig{
		Temperature:   genai.Ptr(req.Temperature),
		StopSequences: req.Stop,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(req.TopP)
	}

	var (
		system   []*genai.Part
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system = append(system, genai.NewPartFromText(m.Content))
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		part := genai.NewPartFromText(m.Content)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	return cfg, contents
}

func candidateText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ""
	}
	c := resp.Candidates[0]
	var sb strings.Builder
	if c.Content != nil {
		for _, part := range c.Content.Parts {
			if part != nil && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String(), strings.ToLower(string(c.FinishReason))
}

// mapError 将 SDK 错误映射为 llm.Error
func mapError(err error) *llm.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.Code, apiErr.Message, providerName)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, providerName)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{
			Code:       llm.ErrUpstreamTimeout,
			Message:    err.Error(),
			HTTPStatus: http.StatusGatewayTimeout,
			Retryable:  true,
			Provider:   providerName,
		}
	}
	return providers.TransportError(err, providerName)
}
