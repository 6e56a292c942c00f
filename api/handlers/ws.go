package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/agentroom/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventSubscriber 房间事件订阅源，由 eventbus.Broadcaster 实现
type EventSubscriber interface {
	Subscribe(ctx context.Context, roomID uint) (<-chan types.Event, string)
}

// ConnectionTracker 统计 WebSocket 连接数
type ConnectionTracker interface {
	WSConnected()
	WSDisconnected()
}

// WSHandler 房间观察者 WebSocket 端点，将房间事件以 JSON 文本帧推送
type WSHandler struct {
	rooms          RoomService
	events         EventSubscriber
	tracker        ConnectionTracker
	originPatterns []string
	pingInterval   time.Duration
	logger         *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器；tracker 可为 nil，
// originPatterns 为空时只接受同源连接
func NewWSHandler(rooms RoomService, events EventSubscriber, tracker ConnectionTracker, originPatterns []string, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		rooms:          rooms,
		events:         events,
		tracker:        tracker,
		originPatterns: originPatterns,
		pingInterval:   wsPingInterval,
		logger:         logger.With(zap.String("component", "ws_handler")),
	}
}

// Register 注册路由
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/rooms/{id}/ws", h.HandleWS)
}

// HandleWS 升级连接并转发房间事件，直到客户端断开或事件源关闭
// @Router /api/v1/rooms/{id}/ws [get]
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r, h.logger)
	if !ok {
		return
	}
	if _, err := h.rooms.Room(r.Context(), roomID); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}

	// 长连接不受服务器 WriteTimeout 约束
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	if h.tracker != nil {
		h.tracker.WSConnected()
		defer h.tracker.WSDisconnected()
	}

	// 观察者只读，CloseRead 负责处理控制帧并在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	events, subID := h.events.Subscribe(ctx, roomID)

	log := h.logger.With(zap.Uint("room_id", roomID), zap.String("sub_id", subID))
	log.Debug("observer connected")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("observer disconnected")
			return

		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !isClosed(err) {
					log.Debug("observer write failed", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug("observer ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, ev types.Event) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

func isClosed(err error) bool {
	return websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled)
}
