/*
包 persistence 提供房间仓储与消息记录（Transcript）的存储抽象及多后端实现。

# 核心接口

  - RoomStore: 房间仓储，编排器每轮都会重新读取房间以感知状态变化，
    同时负责轮次递增、会话重启与启动时的运行状态复位。
  - TranscriptStore: 只追加的消息日志。Append 分配单调递增的序列号，
    Recent/List 始终按序列号而非时间戳排序。

# 后端实现

  - GormStore: 基于 gorm 的关系型实现（postgres / mysql / sqlite），
    表结构通过 AutoMigrate 建立。
  - RedisTranscriptStore: 每个会话一个 Sorted Set，分值为全局 INCR 序列，
    适合多进程共享消息记录；此模式下房间仍保存在数据库。
  - MemoryStore: 内存实现，适合开发与测试，重启后数据丢失。

# 使用方式

	stores, err := persistence.NewStores(cfg.Store.Type, persistence.Backends{DB: db, Redis: rdb})
*/
package persistence
