// Package factory 提供 LLM Provider 的集中式工厂与后端解析器，
// 按名称创建 Provider 实例并结合默认凭据、出口代理策略构造 ModelBackend。
package factory
