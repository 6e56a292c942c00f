package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/internal/tlsutil"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/llm/providers"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3"
	defaultTimeout = 60 * time.Second
	providerName   = "ollama"
)

// chatMessage Ollama /api/chat 的消息格式
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float32  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	Options   chatOptions   `json:"options"`
	KeepAlive string        `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	CreatedAt       time.Time   `json:"created_at"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// OllamaProvider 通过 Ollama 原生 /api/chat 接口访问本地模型。
// 本地部署无需凭据；流式响应为逐行 JSON（NDJSON）。
type OllamaProvider struct {
	cfg    providers.OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaProvider 创建新的 Ollama 提供者实例.
func NewOllamaProvider(cfg providers.OllamaConfig, logger *zap.Logger) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &OllamaProvider{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("provider", providerName)),
	}
}

func (p *OllamaProvider) Name() string { return providerName }

func (p *OllamaProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

// HealthCheck 通过 /api/tags 探测服务可用性
func (p *OllamaProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/api/tags"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("ollama health check failed: status=%d msg=%s", resp.StatusCode, providers.ReadErrorMessage(resp.Body))
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *OllamaProvider) buildRequest(req *llm.ChatRequest, stream bool) chatRequest {
	msgs := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return chatRequest{
		Model:    providers.ChooseModel(req, p.cfg.Model, defaultModel),
		Messages: msgs,
		Stream:   stream,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			TopP:        req.TopP,
			Stop:        req.Stop,
		},
		KeepAlive: p.cfg.KeepAlive,
	}
}

func (p *OllamaProvider) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/api/chat"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, providerName)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), providerName)
	}
	return resp, nil
}

// Completion 发起非流式对话请求
func (p *OllamaProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildRequest(req, false)
	resp, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, providers.TransportError(err, providerName)
	}
	if cr.Error != "" {
		return nil, providers.MapHTTPError(http.StatusInternalServerError, cr.Error, providerName)
	}

	model := cr.Model
	if model == "" {
		model = body.Model
	}
	return &llm.ChatResponse{
		Provider: providerName,
		Model:    model,
		Choices: []llm.ChatChoice{{
			FinishReason: cr.DoneReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: cr.Message.Content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     cr.PromptEvalCount,
			CompletionTokens: cr.EvalCount,
			TotalTokens:      cr.PromptEvalCount + cr.EvalCount,
		},
		CreatedAt: cr.CreatedAt,
	}, nil
}

// Stream 发起流式对话请求，逐行解析 NDJSON
func (p *OllamaProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		send := func(c llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- c:
				return true
			}
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var cr chatResponse
				if uerr := json.Unmarshal(line, &cr); uerr != nil {
					send(llm.StreamChunk{Err: providers.TransportError(uerr, providerName)})
					return
				}
				if cr.Error != "" {
					send(llm.StreamChunk{Err: providers.MapHTTPError(http.StatusInternalServerError, cr.Error, providerName)})
					return
				}
				chunk := llm.StreamChunk{
					Provider:     providerName,
					Model:        cr.Model,
					FinishReason: cr.DoneReason,
					Delta:        llm.Message{Role: llm.RoleAssistant, Content: cr.Message.Content},
				}
				if cr.Done {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     cr.PromptEvalCount,
						CompletionTokens: cr.EvalCount,
						TotalTokens:      cr.PromptEvalCount + cr.EvalCount,
					}
				}
				if !send(chunk) || cr.Done {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					send(llm.StreamChunk{Err: providers.TransportError(err, providerName)})
				}
				return
			}
		}
	}()
	return ch, nil
}
