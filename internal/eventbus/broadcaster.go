package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/types"
)

// subscriberBufferSize 每个订阅者的缓冲区大小
const subscriberBufferSize = 64

// Broadcaster 按房间进行进程内扇出.
// 发布不阻塞：订阅者缓冲区满时丢弃该事件。
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uint]map[string]chan types.Event // roomID -> subID -> ch
	logger      *zap.Logger
}

// NewBroadcaster 创建广播器
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subscribers: make(map[uint]map[string]chan types.Event),
		logger:      logger.With(zap.String("component", "broadcaster")),
	}
}

// Subscribe 注册房间订阅者，返回事件通道与订阅 ID.
// ctx 取消时自动退订并关闭通道。
func (b *Broadcaster) Subscribe(ctx context.Context, roomID uint) (<-chan types.Event, string) {
	subID := uuid.New().String()
	ch := make(chan types.Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[roomID]; !ok {
		b.subscribers[roomID] = make(map[string]chan types.Event)
	}
	b.subscribers[roomID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		zap.Uint("room_id", roomID),
		zap.String("sub_id", subID))

	go func() {
		<-ctx.Done()
		b.Unsubscribe(roomID, subID)
	}()

	return ch, subID
}

// Publish 将事件发送给房间的所有订阅者，实现 EventSink.
func (b *Broadcaster) Publish(_ context.Context, roomID uint, ev types.Event) error {
	// 持有读锁发送，避免与 Unsubscribe 关闭通道竞争
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[roomID] {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				zap.Uint("room_id", roomID),
				zap.String("sub_id", subID),
				zap.String("type", string(ev.Type)))
		}
	}
	return nil
}

// Unsubscribe 移除订阅并关闭其通道
func (b *Broadcaster) Unsubscribe(roomID uint, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[roomID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, roomID)
	}

	b.logger.Debug("subscriber removed",
		zap.Uint("room_id", roomID),
		zap.String("sub_id", subID))
}

// SubscriberCount 返回房间当前的订阅者数量
func (b *Broadcaster) SubscriberCount(roomID uint) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[roomID])
}

// Close 关闭所有订阅者通道
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, roomID)
	}
	b.logger.Debug("broadcaster closed")
}
