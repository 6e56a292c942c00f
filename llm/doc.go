// 版权所有 2024 AgentRoom Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象与面向群聊编排的
ModelBackend 能力接口。

# 概述

不同模型服务商在接口、鉴权、错误语义和流式协议上各不相同。
Provider 屏蔽传输差异（REST、SSE、NDJSON、SDK），ModelBackend 在其上
提供 (历史消息, 人设指令) → 文本 的统一能力，并收敛为两类失败：

  - PROVIDER_ERROR：上游调用失败（网络、鉴权、限流、5xx）
  - EMPTY_RESULT：上游成功但没有可用内容

# 核心接口

  - [Provider]：Completion / Stream / HealthCheck / Name
  - [ModelBackend]：Generate / GenerateStream
  - [Fragment]：流式文本片段，Err 非空表示流以错误结束

# 使用方式

	backend := llm.NewBackend(provider, llm.BackendOptions{Model: "deepseek-chat", Temperature: 0.8})
	text, err := backend.Generate(ctx, history, instructions)

不支持原生流式的实现可通过 [SingleFragment] 将 Generate 包装为单片段序列。
*/
package llm
