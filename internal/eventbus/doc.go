// Package eventbus 实现房间事件的投递：进程内 Broadcaster
// 以及基于 Redis Pub/Sub 的跨进程 RedisRelay。
package eventbus
