package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/types"
)

// Supervisor 管理进程内所有房间的编排任务.
// 同一房间同一时刻至多一个活动编排器；任务运行在独立于请求的基础上下文中。
type Supervisor struct {
	deps   Dependencies
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	active map[uint]*Orchestrator
	closed bool

	group   errgroup.Group
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewSupervisor 创建监督器
func NewSupervisor(deps Dependencies, opts Options) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		deps:    deps,
		opts:    opts,
		logger:  deps.Logger.With(zap.String("component", "supervisor")),
		active:  make(map[uint]*Orchestrator),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start 校验并同步将房间置为 running，然后在后台启动对话循环.
func (s *Supervisor) Start(ctx context.Context, roomID uint) (*types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.NewError(types.ErrServiceUnavailable, "supervisor is shutting down")
	}
	if _, ok := s.active[roomID]; ok {
		return nil, types.InvalidStatef("room %d is already active", roomID)
	}

	orch := NewOrchestrator(roomID, s.deps, s.opts)
	room, err := orch.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	s.active[roomID] = orch

	s.group.Go(func() error {
		defer s.release(roomID, orch)
		if err := orch.Run(s.baseCtx); err != nil {
			s.logger.Warn("conversation ended with error", zap.Uint("room_id", roomID), zap.Error(err))
		}
		return nil
	})

	s.logger.Info("conversation scheduled", zap.Uint("room_id", roomID), zap.Int("session_id", room.SessionID))
	return room, nil
}

func (s *Supervisor) release(roomID uint, orch *Orchestrator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[roomID] == orch {
		delete(s.active, roomID)
	}
}

// Stop 请求停止房间对话.
// 活动房间设置停止标志；没有活动编排器但状态仍为 running 的房间直接置为 finished；
// 其余情况不做任何修改。
func (s *Supervisor) Stop(ctx context.Context, roomID uint) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	orch, ok := s.active[roomID]
	s.mu.Unlock()
	if ok {
		orch.Stop()
		return nil
	}

	if room.Status == types.RoomRunning {
		s.logger.Info("stale running room marked finished", zap.Uint("room_id", roomID))
		if err := s.deps.Rooms.SetStatus(ctx, roomID, types.RoomFinished); err != nil {
			return types.Errorf(types.ErrInternalError, "set room %d finished: %v", roomID, err).WithCause(err)
		}
	}
	return nil
}

// Restart 开启新会话：session_id 加一，轮次清零，状态置为 idle.
// 旧会话的记录保留但不再进入上下文。
func (s *Supervisor) Restart(ctx context.Context, roomID uint) (*types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[roomID]; ok {
		return nil, types.InvalidStatef("room %d is running, stop it first", roomID)
	}
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}

	room, err := s.deps.Rooms.RestartSession(ctx, roomID)
	if err != nil {
		return nil, types.Errorf(types.ErrInternalError, "restart room %d: %v", roomID, err).WithCause(err)
	}
	s.logger.Info("session restarted", zap.Uint("room_id", roomID), zap.Int("session_id", room.SessionID))
	return room, nil
}

// PostUserMessage 将外部用户消息写入当前会话并发布.
// 消息会在下一轮进入参与者的上下文。
func (s *Supervisor) PostUserMessage(ctx context.Context, roomID uint, sender, content string) (*types.Message, error) {
	if content == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "content is required")
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if sender == "" {
		sender = fallbackSender
	}

	msg := &types.Message{
		RoomID:     roomID,
		SessionID:  room.SessionID,
		Role:       types.RoleUser,
		SenderName: sender,
		Content:    content,
	}
	if err := s.deps.Transcripts.Append(ctx, msg); err != nil {
		return nil, types.Errorf(types.ErrInternalError, "persist message: %v", err).WithCause(err)
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.Publish(ctx, roomID, types.NewMessageEvent(msg)); err != nil {
			s.logger.Warn("publish user message failed", zap.Uint("room_id", roomID), zap.Error(err))
		}
	}
	return msg, nil
}

// Transcript 返回指定会话的完整记录；sessionID 为 0 时取当前会话.
func (s *Supervisor) Transcript(ctx context.Context, roomID uint, sessionID int) ([]types.Message, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if sessionID <= 0 {
		sessionID = room.SessionID
	}
	msgs, err := s.deps.Transcripts.List(ctx, roomID, sessionID)
	if err != nil {
		return nil, types.Errorf(types.ErrInternalError, "list transcript: %v", err).WithCause(err)
	}
	return msgs, nil
}

// Room 加载房间
func (s *Supervisor) Room(ctx context.Context, roomID uint) (*types.Room, error) {
	return s.loadRoom(ctx, roomID)
}

// Rooms 列出全部房间（不含参与者）
func (s *Supervisor) Rooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := s.deps.Rooms.ListRooms(ctx)
	if err != nil {
		return nil, types.Errorf(types.ErrInternalError, "list rooms: %v", err).WithCause(err)
	}
	return rooms, nil
}

// ResetRunning 进程启动时调用：此前进程遗留的 running 房间全部回到 idle.
func (s *Supervisor) ResetRunning(ctx context.Context) (int, error) {
	n, err := s.deps.Rooms.ResetRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset running rooms: %w", err)
	}
	if n > 0 {
		s.logger.Info("stale running rooms reset to idle", zap.Int("count", n))
	}
	return n, nil
}

// Active 报告房间是否有活动编排器
func (s *Supervisor) Active(roomID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[roomID]
	return ok
}

// ActiveRooms 返回当前活动房间 ID（升序）
func (s *Supervisor) ActiveRooms() []uint {
	s.mu.Lock()
	ids := make([]uint, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Shutdown 拒绝新的启动请求，通知所有编排器停止并等待退出.
// ctx 到期后取消基础上下文，仍未退出的房间被放回 idle。
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, orch := range s.active {
		orch.Stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached, cancelling conversations", zap.Uints("rooms", s.ActiveRooms()))
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Supervisor) loadRoom(ctx context.Context, roomID uint) (*types.Room, error) {
	room, err := s.deps.Rooms.GetRoom(ctx, roomID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, types.NotFoundf("room %d not found", roomID)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrInternalError, "load room %d: %v", roomID, err).WithCause(err)
	}
	return room, nil
}
