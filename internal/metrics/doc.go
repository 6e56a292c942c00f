// 版权所有 2024 AgentRoom Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、对话轮次、
房间命令与数据库连接池。

# 概述

Collector 使用 promauto 注册到默认 Registry，所有指标按 namespace
隔离，由独立的 metrics 端口通过 promhttp 暴露。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 轮次指标：按 provider/outcome 统计发言结果与耗时，
    Collector 实现 conversation.TurnRecorder。
  - 房间指标：start/stop/restart 命令结果计数与 WebSocket 观察者连接数。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
