// Package circuitbreaker 为模型后端端点提供熔断保护。
//
// 连续失败达到阈值后熔断器打开，期间对该端点的调用立即以 PROVIDER_ERROR 失败；
// 经过 ResetTimeout 后进入半开状态放行试探请求，成功则关闭，失败则重新打开。
// Registry 按 provider + base url 共享熔断器，由 factory.Resolver 持有。
package circuitbreaker
