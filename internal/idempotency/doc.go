// Package idempotency 让带 Idempotency-Key 的写请求可以安全重放。
//
// Manager.Do 先以 SetNX 占位，执行成功后缓存 JSON 结果；重复请求直接回放，
// 并发的同键请求返回 INVALID_STATE。存储可选 Redis（多实例共享）或进程内存。
package idempotency
