// =============================================================================
// 📦 测试数据工厂 - LLM 响应测试数据
// =============================================================================
// 提供预定义的 LLM 响应数据，用于测试
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/agentroom/llm"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: llm.Message{
					Role:    llm.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// EmptyResponse 返回没有 choice 的响应
func EmptyResponse() *llm.ChatResponse {
	return &llm.ChatResponse{ID: "resp-empty", Provider: "mock", Model: "gpt-4", CreatedAt: time.Now()}
}

// =============================================================================
// 🌊 StreamChunk 工厂
// =============================================================================

// TextChunks 把文本片段转换为流式块，最后一块带 stop
func TextChunks(parts ...string) []llm.StreamChunk {
	chunks := make([]llm.StreamChunk, len(parts))
	for i, p := range parts {
		chunks[i] = llm.StreamChunk{
			ID:       "chunk-001",
			Provider: "mock",
			Model:    "gpt-4",
			Index:    i,
			Delta:    llm.Message{Role: llm.RoleAssistant, Content: p},
		}
	}
	if len(chunks) > 0 {
		chunks[len(chunks)-1].FinishReason = "stop"
	}
	return chunks
}

// ErrorChunk 返回携带上游错误的流式块
func ErrorChunk(code llm.ErrorCode, message string) llm.StreamChunk {
	return llm.StreamChunk{
		Provider: "mock",
		Err:      &llm.Error{Code: code, Message: message, HTTPStatus: 502, Provider: "mock"},
	}
}
