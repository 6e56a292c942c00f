// Package config 提供 AgentRoom 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（AGENTROOM_ 前缀）的顺序加载，
// 覆盖服务器、存储、LLM Provider 默认凭据以及群聊编排参数
// （上下文窗口、轮次间隔、失败策略、开场白/结束语模板、出口代理）。
package config
