// 版权所有 2024 AgentRoom Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库打开与连接池管理。

# 概述

Open 根据 config.DatabaseConfig 选择方言（postgres、mysql、
纯 Go 的 sqlite 或 CGO 的 sqlite3），并交给 PoolManager 统一管理
连接生命周期。后台健康检查定时探活，异常时通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置与校验。
  - PoolStats：就绪探针输出的连接池统计信息。
*/
package database
