// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 AgentRoom 提供集中式的 TracerProvider 和 MeterProvider 配置。
// resource 带上存储类型、事件转发方式与默认模型提供方等部署属性；
// 编排器与 HTTP 中间件通过 Tracer/Meter 按作用域取用全局 provider。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
