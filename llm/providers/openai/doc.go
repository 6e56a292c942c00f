// Package openai 提供 OpenAI Chat Completions 的 Provider 实现，
// 基于 openaicompat 共享传输，额外支持 OpenAI-Organization 头。
package openai
