// Copyright 2026 AgentRoom Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供跨模型服务商的通用适配能力，是具体 Provider 实现的公共基础层。
各服务商子包（openai、deepseek、ollama、gemini）依赖本包完成请求/响应转换与错误映射。

# 核心类型

  - BaseProviderConfig: 所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout、HTTPClient）
  - OpenAICompat* 系列: OpenAI 兼容 API 的通用请求/响应结构体

# 核心函数

  - MapHTTPError: 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - TransportError: 网络/解码失败统一为可重试的上游错误
  - ReadErrorMessage: 兼容 OpenAI 与 Ollama 两种错误体
  - ConvertMessagesToOpenAI / ToLLMChatResponse: 消息与响应格式转换
  - ChooseModel: 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
