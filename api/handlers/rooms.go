package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/BaSui01/agentroom/internal/idempotency"
	"github.com/BaSui01/agentroom/types"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader 客户端提供的幂等键请求头
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

// =============================================================================
// 🗣️ Room Control Handler
// =============================================================================

// RoomService 房间控制面，由 conversation.Supervisor 实现
type RoomService interface {
	Start(ctx context.Context, roomID uint) (*types.Room, error)
	Stop(ctx context.Context, roomID uint) error
	Restart(ctx context.Context, roomID uint) (*types.Room, error)
	Room(ctx context.Context, roomID uint) (*types.Room, error)
	Rooms(ctx context.Context) ([]types.Room, error)
	Active(roomID uint) bool
	PostUserMessage(ctx context.Context, roomID uint, sender, content string) (*types.Message, error)
	Transcript(ctx context.Context, roomID uint, sessionID int) ([]types.Message, error)
}

// CommandRecorder 记录房间控制命令结果
type CommandRecorder interface {
	RecordRoomCommand(command string, err error)
}

// RoomHandler 房间控制处理器
type RoomHandler struct {
	rooms    RoomService
	recorder CommandRecorder
	idem     *idempotency.Manager
	logger   *zap.Logger
}

// RoomView 房间状态视图
type RoomView struct {
	*types.Room
	Active bool `json:"active"`
}

// PostMessageRequest 用户发言请求
type PostMessageRequest struct {
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
}

// TranscriptView 会话记录视图
type TranscriptView struct {
	RoomID    uint            `json:"room_id"`
	SessionID int             `json:"session_id"`
	Messages  []types.Message `json:"messages"`
}

// NewRoomHandler 创建房间处理器；recorder 可为 nil
func NewRoomHandler(rooms RoomService, recorder CommandRecorder, logger *zap.Logger) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{
		rooms:    rooms,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "room_handler")),
	}
}

// WithIdempotency 启用 POST messages 的 Idempotency-Key 支持
func (h *RoomHandler) WithIdempotency(m *idempotency.Manager) *RoomHandler {
	h.idem = m
	return h
}

// Register 注册路由
func (h *RoomHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/rooms", h.HandleList)
	mux.HandleFunc("GET /api/v1/rooms/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/rooms/{id}/start", h.HandleStart)
	mux.HandleFunc("POST /api/v1/rooms/{id}/stop", h.HandleStop)
	mux.HandleFunc("POST /api/v1/rooms/{id}/restart", h.HandleRestart)
	mux.HandleFunc("GET /api/v1/rooms/{id}/messages", h.HandleListMessages)
	mux.HandleFunc("POST /api/v1/rooms/{id}/messages", h.HandlePostMessage)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleStart 启动房间对话，对话在后台进行，立即返回 202
// @Router /api/v1/rooms/{id}/start [post]
func (h *RoomHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	room, err := h.rooms.Start(r.Context(), id)
	h.record("start", err)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	h.logger.Info("room started", zap.Uint("room_id", id), zap.Int("session_id", room.SessionID))
	WriteSuccessStatus(w, http.StatusAccepted, RoomView{Room: room, Active: true})
}

// HandleStop 请求停止房间，当前轮次结束后生效
// @Router /api/v1/rooms/{id}/stop [post]
func (h *RoomHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	err := h.rooms.Stop(r.Context(), id)
	h.record("stop", err)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	h.writeRoom(w, r, id)
}

// HandleRestart 开启新会话，旧会话记录保留
// @Router /api/v1/rooms/{id}/restart [post]
func (h *RoomHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	room, err := h.rooms.Restart(r.Context(), id)
	h.record("restart", err)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, RoomView{Room: room, Active: h.rooms.Active(id)})
}

// HandleGet 查询房间状态
// @Router /api/v1/rooms/{id} [get]
func (h *RoomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	h.writeRoom(w, r, id)
}

// HandleList 列出房间
// @Router /api/v1/rooms [get]
func (h *RoomHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.Rooms(r.Context())
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	views := make([]RoomView, 0, len(rooms))
	for i := range rooms {
		views = append(views, RoomView{Room: &rooms[i], Active: h.rooms.Active(rooms[i].ID)})
	}
	WriteSuccess(w, views)
}

// HandleListMessages 读取会话记录，?session= 缺省为当前会话
// @Router /api/v1/rooms/{id}/messages [get]
func (h *RoomHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}

	sessionID := 0
	if raw := r.URL.Query().Get("session"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "session must be a positive integer", h.logger)
			return
		}
		sessionID = n
	}

	msgs, err := h.rooms.Transcript(r.Context(), id, sessionID)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if sessionID == 0 && len(msgs) > 0 {
		sessionID = msgs[0].SessionID
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	WriteSuccess(w, TranscriptView{RoomID: id, SessionID: sessionID, Messages: msgs})
}

// HandlePostMessage 以用户身份发言
// @Router /api/v1/rooms/{id}/messages [post]
func (h *RoomHandler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req PostMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "content is required", h.logger)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || h.idem == nil {
		msg, err := h.rooms.PostUserMessage(r.Context(), id, req.Sender, req.Content)
		h.record("message", err)
		if err != nil {
			WriteErrorFrom(w, err, h.logger)
			return
		}
		WriteSuccessStatus(w, http.StatusCreated, msg)
		return
	}

	if len(key) > maxIdempotencyKeyLen {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "idempotency key too long", h.logger)
		return
	}
	k, err := idempotency.GenerateKey("room-message", id, key)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	data, replayed, err := h.idem.Do(r.Context(), k, func(ctx context.Context) (any, error) {
		return h.rooms.PostUserMessage(ctx, id, req.Sender, req.Content)
	})
	if !replayed {
		h.record("message", err)
	}
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	WriteSuccessStatus(w, http.StatusCreated, data)
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

func (h *RoomHandler) writeRoom(w http.ResponseWriter, r *http.Request, id uint) {
	room, err := h.rooms.Room(r.Context(), id)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, RoomView{Room: room, Active: h.rooms.Active(id)})
}

func (h *RoomHandler) record(command string, err error) {
	if h.recorder != nil {
		h.recorder.RecordRoomCommand(command, err)
	}
}

// roomID 解析路径中的房间 ID，失败时已写出 400
func (h *RoomHandler) roomID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	return parseRoomID(w, r, h.logger)
}

func parseRoomID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uint, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid room id", logger)
		return 0, false
	}
	return uint(id), true
}
