// Package retry 为模型后端提供显式、可配置的指数退避重试。
// 默认只重试标记为 Retryable 的 *types.Error（429、5xx、超时），
// 由 factory.Resolver 在 llm.max_retries > 0 时包装到解析出的后端上。
package retry
