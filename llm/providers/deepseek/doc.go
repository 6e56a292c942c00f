// Package deepseek 提供 DeepSeek 的 Provider 实现（OpenAI 兼容协议，
// 默认 https://api.deepseek.com/chat/completions，模型 deepseek-chat）。
package deepseek
