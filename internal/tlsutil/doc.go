// Package tlsutil 提供集中式 TLS 配置，
// 为模型 Provider 的 HTTP 客户端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 并按参与者的 use_proxy 策略构造经出口代理转发的客户端。
package tlsutil
