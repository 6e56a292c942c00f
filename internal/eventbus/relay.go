package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/types"
)

// RedisRelay 通过 Redis Pub/Sub 在多个进程间转发房间事件.
// Publish 只写入 Redis；Run 订阅所有房间频道并投递到本地 Broadcaster，
// 因此本进程发布的事件同样经由 Redis 回到本地订阅者。
type RedisRelay struct {
	client redis.UniversalClient
	prefix string
	local  *Broadcaster
	logger *zap.Logger
}

// wireEvent 跨进程传输时保留原始 data
type wireEvent struct {
	Type types.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewRedisRelay 创建 Redis 事件转发器
func NewRedisRelay(client redis.UniversalClient, prefix string, local *Broadcaster, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "agentroom:"
	}
	return &RedisRelay{
		client: client,
		prefix: prefix + "events:",
		local:  local,
		logger: logger.With(zap.String("component", "redis_relay")),
	}
}

// Channel 返回房间对应的 Redis 频道名
func (r *RedisRelay) Channel(roomID uint) string {
	return r.prefix + "room:" + strconv.FormatUint(uint64(roomID), 10)
}

// Publish 将事件序列化后发布到房间频道
func (r *RedisRelay) Publish(ctx context.Context, roomID uint, ev types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (r *RedisRelay) roomID(channel string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, r.prefix+"room:"), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// Run 订阅所有房间频道直到 ctx 取消.
// ready 非空时在订阅确认后关闭。
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"room:*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe room events: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("relaying room events", zap.String("pattern", r.prefix+"room:*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			roomID, ok := r.roomID(msg.Channel)
			if !ok {
				r.logger.Warn("ignoring event on unexpected channel", zap.String("channel", msg.Channel))
				continue
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("dropping malformed event", zap.Uint("room_id", roomID), zap.Error(err))
				continue
			}
			_ = r.local.Publish(ctx, roomID, types.Event{Type: ev.Type, Data: ev.Data})
		}
	}
}
