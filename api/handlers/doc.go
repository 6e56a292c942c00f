// Copyright (c) AgentRoom Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentRoom HTTP API 的请求处理器实现。

# 核心类型

  - RoomHandler     : 房间控制：启动、停止、重启、状态查询、会话记录与用户发言
  - WSHandler       : 房间观察者 WebSocket 端点，推送 message/delta 事件
  - HealthHandler   : 服务健康检查（/health, /healthz, /ready）
  - Response        : 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter  : 包装 http.ResponseWriter 以捕获状态码

# 错误映射

types.Error 的错误码按以下规则映射为 HTTP 状态码：
NOT_FOUND → 404，INVALID_STATE → 409，INVALID_REQUEST → 400，
UNSUPPORTED_PROVIDER/CONFIGURATION_ERROR → 422，
PROVIDER_ERROR/EMPTY_RESULT → 502，SERVICE_UNAVAILABLE → 503，
其余 → 500。非 types.Error 的错误不向客户端暴露细节。
*/
package handlers
