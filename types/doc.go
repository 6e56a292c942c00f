// Copyright (c) AgentRoom Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentRoom 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的领域记录与错误契约。

# 核心类型

  - Room / RoomStatus / Mode: 会话容器及其生命周期状态
  - Participant / BackendSpec: 人设与其模型后端配置（单一形状，可选字段）
  - Message / Role           : 不可变的对话记录条目
  - Error / ErrorCode        : 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
*/
package types
