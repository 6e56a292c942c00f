package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/types"
)

// flushTimeout 限制进程取消后收尾写入的耗时
const flushTimeout = 5 * time.Second

// 生成失败中属于 "单轮失败" 的错误码，其余错误一律中止对话
var turnFailureCodes = map[types.ErrorCode]bool{
	types.ErrProviderError:       true,
	types.ErrEmptyResult:         true,
	types.ErrConfiguration:       true,
	types.ErrUnsupportedProvider: true,
}

// IsTurnFailure 判断错误是否属于可按失败策略处理的单轮生成失败.
func IsTurnFailure(err error) bool {
	return turnFailureCodes[types.GetErrorCode(err)]
}

// Dependencies 编排器与监督器共享的依赖
type Dependencies struct {
	Rooms       persistence.RoomStore
	Transcripts persistence.TranscriptStore
	Sink        EventSink
	Resolver    BackendResolver
	Recorder    TurnRecorder
	Logger      *zap.Logger
}

// Orchestrator 驱动单个房间的轮流发言循环.
// 状态机: idle → running → finished | idle。
type Orchestrator struct {
	roomID   uint
	deps     Dependencies
	opts     Options
	builder  *ContextBuilder
	selector RoundRobinSelector
	inst     *instruments
	logger   *zap.Logger

	stopRequested atomic.Bool
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator 创建房间编排器
func NewOrchestrator(roomID uint, deps Dependencies, opts Options) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = FailureSkip
	}
	return &Orchestrator{
		roomID:  roomID,
		deps:    deps,
		opts:    opts,
		builder: NewContextBuilder(deps.Transcripts, opts.ContextWindow, opts.ContextTokenBudget),
		inst:    newInstruments(),
		logger:  deps.Logger.With(zap.String("component", "orchestrator"), zap.Uint("room_id", roomID)),
		sleep:   sleepContext,
	}
}

// Stop 设置协作式停止标志，在下一次循环开始时生效.
// 正在进行的生成不会被打断，其结果仍会被保存。
func (o *Orchestrator) Stop() {
	if o.stopRequested.CompareAndSwap(false, true) {
		o.logger.Info("stop requested")
	}
}

// Stopping 报告是否已请求停止
func (o *Orchestrator) Stopping() bool {
	return o.stopRequested.Load()
}

// Prepare 校验启动前置条件并将房间置为 running.
// 房间不存在返回 NOT_FOUND；已结束、无参与者或已在运行返回 INVALID_STATE。
func (o *Orchestrator) Prepare(ctx context.Context) (*types.Room, error) {
	room, err := o.deps.Rooms.GetRoom(ctx, o.roomID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, types.NotFoundf("room %d not found", o.roomID)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrInternalError, "load room %d: %v", o.roomID, err).WithCause(err)
	}

	switch {
	case room.Status == types.RoomFinished:
		return nil, types.InvalidStatef("room %d conversation already finished", o.roomID)
	case room.Status == types.RoomRunning:
		return nil, types.InvalidStatef("room %d is already running", o.roomID)
	case len(room.Participants) == 0:
		return nil, types.InvalidStatef("room %d has no participants", o.roomID)
	}

	if err := o.deps.Rooms.SetStatus(ctx, o.roomID, types.RoomRunning); err != nil {
		return nil, types.Errorf(types.ErrInternalError, "set room %d running: %v", o.roomID, err).WithCause(err)
	}
	room.Status = types.RoomRunning
	return room, nil
}

// Run 执行对话循环直到轮次耗尽、收到停止请求或发生中止错误.
// 调用前房间须已通过 Prepare 置为 running。
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	o.inst.activeRuns.Add(ctx, 1)
	defer o.inst.activeRuns.Add(context.WithoutCancel(ctx), -1)

	room, err := o.deps.Rooms.GetRoom(ctx, o.roomID)
	if err != nil {
		return o.abort(ctx, nil, fmt.Errorf("load room: %w", err))
	}

	o.logger.Info("conversation started",
		zap.String("mode", string(room.Mode)),
		zap.Int("participants", len(room.Participants)),
		zap.Int("session_id", room.SessionID),
		zap.Int("max_rounds", room.MaxRounds))

	start := renderTemplate(o.opts.startTemplate(room.Mode), map[string]string{"topic": room.Topic})
	if err := o.announce(ctx, room, start); err != nil {
		return o.abort(ctx, room, err)
	}

	for {
		if o.Stopping() {
			o.logger.Info("stop observed, ending conversation")
			break
		}

		room, err = o.deps.Rooms.GetRoom(ctx, o.roomID)
		if err != nil {
			return o.abort(ctx, room, fmt.Errorf("reload room: %w", err))
		}
		if room.Exhausted() {
			o.logger.Info("max rounds reached", zap.Int("max_rounds", room.MaxRounds))
			break
		}
		if room.Status != types.RoomRunning {
			o.logger.Info("room status changed externally, exiting", zap.String("status", string(room.Status)))
			return nil
		}

		p, err := o.selector.Next(room.Participants)
		if err != nil {
			return o.abort(ctx, room, err)
		}

		if err := o.turn(ctx, room, p); err != nil {
			if ctx.Err() != nil {
				return o.interrupted(ctx)
			}
			if !IsTurnFailure(err) || o.opts.FailurePolicy == FailureAbort {
				return o.abort(ctx, room, err)
			}
			o.logger.Warn("turn failed, skipping participant",
				zap.String("participant", p.DisplayName),
				zap.String("code", string(types.GetErrorCode(err))),
				zap.Error(err))
		}

		if err := o.sleep(ctx, o.opts.Pacing); err != nil {
			return o.interrupted(ctx)
		}
	}

	return o.finish(ctx, room)
}

// turn 执行一位参与者的发言：构建上下文、解析后端、生成、先持久化再发布.
func (o *Orchestrator) turn(ctx context.Context, room *types.Room, p *types.Participant) (err error) {
	provider := p.Backend.Provider
	started := time.Now()
	ctx, span := o.inst.startTurn(ctx, room.ID, room.SessionID, p.DisplayName, provider)

	outcome := OutcomeSuccess
	defer func() {
		if err != nil && outcome == OutcomeSuccess {
			outcome = OutcomeSkipped
			if !IsTurnFailure(err) || o.opts.FailurePolicy == FailureAbort {
				outcome = OutcomeAborted
			}
		}
		d := time.Since(started)
		o.inst.endTurn(ctx, span, provider, outcome, d, err)
		if o.deps.Recorder != nil {
			o.deps.Recorder.RecordTurn(provider, outcome, d)
		}
	}()

	history, err := o.builder.Build(ctx, room, p)
	if err != nil {
		return err
	}
	instructions := BuildInstructions(room, p, o.opts.WordLimit)

	backend, err := o.deps.Resolver.Resolve(ctx, p.Backend)
	if err != nil {
		return err
	}
	if namer, ok := o.deps.Resolver.(modelNamer); ok {
		history = o.builder.FitBudget(namer.Model(p.Backend), instructions, history)
	}

	content, genErr := o.generate(ctx, backend, room, p, history, instructions)
	content = strings.TrimSpace(content)
	if content == "" {
		if genErr == nil {
			genErr = llm.EmptyResult(provider)
		}
		return genErr
	}

	// 流式中断时已累积的前缀同样保存，ctx 已取消时改用独立的收尾上下文
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
	}
	msg := &types.Message{
		RoomID:        room.ID,
		SessionID:     room.SessionID,
		Role:          types.RoleAssistant,
		SenderName:    p.DisplayName,
		ParticipantID: p.ID,
		PersonaID:     p.PersonaID,
		Content:       content,
	}
	if err := o.persistAndPublish(saveCtx, msg); err != nil {
		return err
	}
	rounds, err := o.deps.Rooms.IncrementRounds(saveCtx, room.ID)
	if err != nil {
		return fmt.Errorf("increment rounds: %w", err)
	}

	o.logger.Info("participant spoke",
		zap.String("participant", p.DisplayName),
		zap.Int("round", rounds),
		zap.Int("max_rounds", room.MaxRounds),
		zap.Uint64("message_id", msg.ID))

	if genErr != nil {
		outcome = OutcomePartial
	}
	return genErr
}

func (o *Orchestrator) generate(ctx context.Context, backend llm.ModelBackend, room *types.Room, p *types.Participant, history []llm.Message, instructions string) (string, error) {
	if !o.opts.StreamTurns {
		return backend.Generate(ctx, history, instructions)
	}

	fragments, err := backend.GenerateStream(ctx, history, instructions)
	if err != nil {
		return "", err
	}
	return Accumulate(ctx, fragments, func(text string) error {
		return o.deps.Sink.Publish(ctx, room.ID, types.NewDeltaEvent(room.ID, p, text))
	})
}

// persistAndPublish 先写入记录再发布事件；发布失败只记录日志.
func (o *Orchestrator) persistAndPublish(ctx context.Context, msg *types.Message) error {
	if err := o.deps.Transcripts.Append(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if err := o.deps.Sink.Publish(ctx, msg.RoomID, types.NewMessageEvent(msg)); err != nil {
		o.logger.Warn("publish message failed", zap.Uint64("message_id", msg.ID), zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) announce(ctx context.Context, room *types.Room, content string) error {
	return o.persistAndPublish(ctx, &types.Message{
		RoomID:    room.ID,
		SessionID: room.SessionID,
		Role:      types.RoleSystem,
		Content:   content,
	})
}

// finish 正常结束：状态置为 finished 并发送结束语.
func (o *Orchestrator) finish(ctx context.Context, room *types.Room) error {
	if err := o.deps.Rooms.SetStatus(ctx, o.roomID, types.RoomFinished); err != nil {
		return o.abort(ctx, room, fmt.Errorf("set finished: %w", err))
	}
	if err := o.announce(ctx, room, o.opts.EndTemplate); err != nil {
		o.logger.Error("end announcement failed", zap.Error(err))
	}
	o.logger.Info("conversation finished", zap.Int("turns_attempted", o.selector.Cursor()))
	return nil
}

// abort 尽力发布错误通知并将房间置为 idle，返回原始错误.
func (o *Orchestrator) abort(ctx context.Context, room *types.Room, cause error) error {
	o.logger.Error("conversation aborted", zap.Error(cause))

	if room != nil {
		notice := renderTemplate(o.opts.ErrorTemplate, map[string]string{"error": cause.Error()})
		if err := o.announce(ctx, room, notice); err != nil {
			o.logger.Warn("error notice failed", zap.Error(err))
		}
	}
	if err := o.deps.Rooms.SetStatus(ctx, o.roomID, types.RoomIdle); err != nil {
		o.logger.Error("reset room status failed", zap.Error(err))
	}
	return cause
}

// interrupted 进程级取消（如强制关闭）时不再写通知，仅尽力把房间放回 idle.
func (o *Orchestrator) interrupted(ctx context.Context) error {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := o.deps.Rooms.SetStatus(cleanup, o.roomID, types.RoomIdle); err != nil {
		o.logger.Error("reset room status failed", zap.Error(err))
	}
	o.logger.Warn("conversation interrupted", zap.Error(ctx.Err()))
	return ctx.Err()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
