// 版权所有 2024 AgentRoom Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，提供
    Start/Shutdown/WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时与优雅关闭超时，
    可由 ConfigFrom 从全局 config.ServerConfig 派生。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，
    监听 ":0" 时 Addr 返回实际端口。
  - 关闭回调：OnShutdown 注册的函数在 Shutdown 开始时执行，
    用于让 WebSocket 订阅者及时退出。
  - 信号监听：WaitForShutdown 在 SIGINT/SIGTERM、ctx 取消或
    服务异常时返回，关闭顺序交由调用方编排。
*/
package server
