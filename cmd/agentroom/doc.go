// Copyright (c) AgentRoom Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentRoom 服务端程序入口。

# 概述

cmd/agentroom 启动多人格群聊编排服务：加载 YAML/环境变量配置，
按 store.type 打开数据库、Redis 或内存存储，构建房间编排器，
并通过 HTTP 与 WebSocket 对外提供房间控制与实时消息流。

# 子命令

  - serve   启动 HTTP API 与 Metrics 服务器
  - seed    从 YAML 文件导入房间与参与者（按名称跳过已存在的房间）
  - reset   将上次进程遗留的 running 房间恢复为 idle
  - health  探测运行中实例的 /health 或 /ready
  - version 输出构建信息

# 中间件链

Recovery、RequestID、SecurityHeaders、OTelTracing、MetricsMiddleware、
RequestLogger、CORS、RateLimiter（基于 IP，rate_limit_rps 为 0 时关闭）。

# 关闭顺序

HTTP 服务器（断开 WebSocket 观察者）→ 停止所有房间并等待当前轮次 →
后台任务（Redis 事件中继）→ Metrics 服务器 → 存储连接 → 遥测。

Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
