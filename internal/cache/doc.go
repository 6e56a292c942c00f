// 版权所有 2024 AgentRoom Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理进程共享的 Redis 连接。

# 概述

Manager 封装 go-redis 客户端的生命周期：启动时探活、后台定时
健康检查、优雅关闭。Redis 记录存储（store.type=redis）与跨进程
事件中继共用同一个客户端。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Client/Ping/Close/GetStats。
  - Config：连接配置，可由 config.RedisConfig 通过 ConfigFrom 构造。
  - Stats：就绪探针输出的命中数、键数量、内存与连接数。
*/
package cache
