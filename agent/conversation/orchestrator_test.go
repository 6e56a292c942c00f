package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/testutil"
	"github.com/BaSui01/agentroom/testutil/fixtures"
	"github.com/BaSui01/agentroom/testutil/mocks"
	"github.com/BaSui01/agentroom/types"
)

type turnRecord struct {
	provider string
	outcome  string
}

type recordingRecorder struct {
	mu    sync.Mutex
	turns []turnRecord
}

func (r *recordingRecorder) RecordTurn(provider, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turnRecord{provider: provider, outcome: outcome})
}

func (r *recordingRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.turns))
	for i, tr := range r.turns {
		out[i] = tr.outcome
	}
	return out
}

type harness struct {
	store    *persistence.MemoryStore
	sink     *mocks.RecordingSink
	backend  *mocks.MockBackend
	resolver *mocks.MockResolver
	recorder *recordingRecorder
	room     *types.Room
	opts     Options
	deps     Dependencies
}

func newHarness(t testing.TB, room *types.Room) *harness {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.CreateRoom(context.Background(), room))

	backend := mocks.NewMockBackend()
	h := &harness{
		store:    store,
		sink:     mocks.NewRecordingSink(),
		backend:  backend,
		resolver: mocks.NewMockResolver(backend),
		recorder: &recordingRecorder{},
		room:     room,
	}
	h.opts = DefaultOptions()
	h.opts.Pacing = 0
	h.deps = Dependencies{
		Rooms:       store,
		Transcripts: store,
		Sink:        h.sink,
		Resolver:    h.resolver,
		Recorder:    h.recorder,
		Logger:      zaptest.NewLogger(t),
	}
	return h
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(h.room.ID, h.deps, h.opts)
}

// runWith 执行 Prepare 与 Run，返回结束后的房间
func (h *harness) runWith(t testing.TB, o *Orchestrator) (*types.Room, error) {
	ctx := context.Background()
	_, err := o.Prepare(ctx)
	require.NoError(t, err)
	runErr := o.Run(ctx)
	room, err := h.store.GetRoom(ctx, h.room.ID)
	require.NoError(t, err)
	return room, runErr
}

func (h *harness) run(t testing.TB) (*types.Room, error) {
	return h.runWith(t, h.orchestrator())
}

func (h *harness) transcript(t testing.TB) []types.Message {
	msgs, err := h.store.List(context.Background(), h.room.ID, h.room.SessionID)
	require.NoError(t, err)
	return msgs
}

func speakers(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		if m.IsSystem() {
			out[i] = "System"
			continue
		}
		out[i] = m.SenderName
	}
	return out
}

func TestOrchestrator_RoundRobinUntilExhausted(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(5))

	room, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, types.RoomFinished, room.Status)
	assert.Equal(t, 5, room.CurrentRounds)

	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "A", "B", "C", "A", "B", "System"}, speakers(msgs))
	assert.Equal(t, "本次辩论的主题是：AI 是否会取代程序员，请各位辩手开始发言。", msgs[0].Content)
	assert.Equal(t, h.opts.EndTemplate, msgs[len(msgs)-1].Content)

	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
	for _, m := range msgs[1 : len(msgs)-1] {
		assert.Equal(t, types.RoleAssistant, m.Role)
		assert.NotZero(t, m.ParticipantID)
	}

	// 每条持久化消息都发布了一次，且发布时已有序列号
	published := h.sink.Messages()
	require.Len(t, published, len(msgs))
	for i, p := range published {
		assert.Equal(t, msgs[i].ID, p.ID)
	}
	assert.Equal(t, "System", published[0].DisplayName)
	assert.Nil(t, published[0].ParticipantID)
	require.NotNil(t, published[1].ParticipantID)

	assert.Equal(t, []string{"success", "success", "success", "success", "success"}, h.recorder.outcomes())
}

func TestOrchestrator_GroupChatStartTemplate(t *testing.T) {
	h := newHarness(t, fixtures.GroupChatRoom(2, 1))

	_, err := h.run(t)
	require.NoError(t, err)

	msgs := h.transcript(t)
	assert.Equal(t, "本次群聊的主题是：周末去哪儿，请大家开始讨论。", msgs[0].Content)
}

func TestOrchestrator_ContextReflectsSpeakerPerspective(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(4))
	h.backend.WithGenerateFunc(func(_ context.Context, history []llm.Message, _ string) (string, error) {
		return fmt.Sprintf("reply-%d", len(history)), nil
	})

	_, err := h.run(t)
	require.NoError(t, err)

	calls := h.backend.Calls()
	require.Len(t, calls, 4)

	testutil.AssertMessagesEqual(t, []llm.Message{
		{Role: llm.RoleUser, Content: "[System] 本次辩论的主题是：AI 是否会取代程序员，请各位辩手开始发言。"},
	}, calls[0].History)
	assert.Contains(t, calls[0].Instructions, "姓名：A")

	// 第四轮轮到 A：自己的发言是 assistant，其他人带名字标签
	testutil.AssertMessagesEqual(t, []llm.Message{
		{Role: llm.RoleUser, Content: "[System] 本次辩论的主题是：AI 是否会取代程序员，请各位辩手开始发言。"},
		{Role: llm.RoleAssistant, Content: "reply-1"},
		{Role: llm.RoleUser, Content: "[B] reply-2"},
		{Role: llm.RoleUser, Content: "[C] reply-3"},
	}, calls[3].History)
}

func TestOrchestrator_ContextWindowBound(t *testing.T) {
	h := newHarness(t, fixtures.GroupChatRoom(2, 8))
	h.opts.ContextWindow = 3

	_, err := h.run(t)
	require.NoError(t, err)

	for i, call := range h.backend.Calls() {
		assert.LessOrEqual(t, len(call.History), 3, "call %d", i)
	}
}

func TestOrchestrator_StopCompletesCurrentTurn(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(10))
	o := h.orchestrator()
	h.backend.WithGenerateFunc(func(context.Context, []llm.Message, string) (string, error) {
		o.Stop()
		return "最后一句", nil
	})

	room, err := h.runWith(t, o)
	require.NoError(t, err)

	assert.Equal(t, types.RoomFinished, room.Status)
	assert.Equal(t, 1, room.CurrentRounds)
	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "A", "System"}, speakers(msgs))
	assert.Equal(t, "最后一句", msgs[1].Content)
	assert.True(t, o.Stopping())
}

func TestOrchestrator_ExternalStatusChangeExitsWithoutMutation(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(10))
	calls := 0
	h.backend.WithGenerateFunc(func(ctx context.Context, _ []llm.Message, _ string) (string, error) {
		calls++
		if calls == 2 {
			require.NoError(t, h.store.SetStatus(ctx, h.room.ID, types.RoomIdle))
		}
		return "ok", nil
	})

	room, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, types.RoomIdle, room.Status)
	assert.Equal(t, 2, room.CurrentRounds)
	assert.Equal(t, []string{"System", "A", "B"}, speakers(h.transcript(t)))
}

func TestOrchestrator_SkipPolicy(t *testing.T) {
	room := fixtures.DebateRoom(2)
	room.Participants[0].Backend.Provider = "broken"
	room.Participants = room.Participants[:2]
	h := newHarness(t, room)
	h.resolver.WithError("broken", types.NewError(types.ErrConfiguration, "missing api key"))

	got, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, types.RoomFinished, got.Status)
	assert.Equal(t, 2, got.CurrentRounds)
	assert.Equal(t, []string{"System", "B", "B", "System"}, speakers(h.transcript(t)))
	assert.Equal(t, []string{"skipped", "success", "skipped", "success"}, h.recorder.outcomes())
}

func TestOrchestrator_EmptyResultSkipped(t *testing.T) {
	room := fixtures.DebateRoom(1)
	room.Participants = room.Participants[:2]
	h := newHarness(t, room)
	h.backend.WithReplies(mocks.Reply{Text: "   "}, mocks.Reply{Text: "有内容"})

	got, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, 1, got.CurrentRounds)
	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "B", "System"}, speakers(msgs))
	assert.Equal(t, "有内容", msgs[1].Content)
}

func TestOrchestrator_AbortPolicy(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(5))
	h.opts.FailurePolicy = FailureAbort
	h.backend.WithReplies(
		mocks.Reply{Text: "第一轮"},
		mocks.Reply{Err: types.NewError(types.ErrProviderError, "upstream 503").WithProvider("mock")},
	)

	room, err := h.run(t)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProviderError))

	assert.Equal(t, types.RoomIdle, room.Status)
	assert.Equal(t, 1, room.CurrentRounds)
	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "A", "System"}, speakers(msgs))
	assert.Contains(t, msgs[2].Content, "对话因错误中断")
	assert.Contains(t, msgs[2].Content, "upstream 503")
	assert.Equal(t, []string{"success", "aborted"}, h.recorder.outcomes())
}

func TestOrchestrator_UnexpectedErrorAbortsUnderSkipPolicy(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(5))
	h.backend.WithError(errors.New("store exploded"))

	room, err := h.run(t)
	require.Error(t, err)

	assert.Equal(t, types.RoomIdle, room.Status)
	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "System"}, speakers(msgs))
	assert.Contains(t, msgs[1].Content, "store exploded")
}

func TestOrchestrator_StreamingPublishesDeltas(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(1))
	h.opts.StreamTurns = true
	h.backend.WithReplies(mocks.Reply{Fragments: []string{"正方", "观点"}})

	room, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, types.RoomFinished, room.Status)
	msgs := h.transcript(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "正方观点", msgs[1].Content)

	deltas := h.sink.Deltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, "正方", deltas[0].Content)
	assert.Equal(t, "A", deltas[0].DisplayName)
	assert.True(t, h.backend.Calls()[0].Stream)
}

func TestOrchestrator_StreamingPartialIsPersisted(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(1))
	h.opts.StreamTurns = true
	h.backend.WithReplies(mocks.Reply{
		Fragments: []string{"Hel", "lo"},
		Err:       types.NewError(types.ErrProviderError, "connection reset"),
	})

	room, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, types.RoomFinished, room.Status)
	assert.Equal(t, 1, room.CurrentRounds)
	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "A", "System"}, speakers(msgs))
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, []string{"partial"}, h.recorder.outcomes())
}

func TestOrchestrator_StreamingPartialThenAbort(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(3))
	h.opts.StreamTurns = true
	h.opts.FailurePolicy = FailureAbort
	h.backend.WithReplies(mocks.Reply{
		Fragments: []string{"半句"},
		Err:       types.NewError(types.ErrProviderError, "connection reset"),
	})

	room, err := h.run(t)
	require.Error(t, err)

	assert.Equal(t, types.RoomIdle, room.Status)
	assert.Equal(t, 1, room.CurrentRounds)
	msgs := h.transcript(t)
	assert.Equal(t, []string{"System", "A", "System"}, speakers(msgs))
	assert.Equal(t, "半句", msgs[1].Content)
}

func TestOrchestrator_PublishFailureDoesNotStopConversation(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(3))
	h.sink.WithError(errors.New("subscriber gone"))

	room, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, types.RoomFinished, room.Status)
	assert.Len(t, h.transcript(t), 5)
}

func TestOrchestrator_ContextCancelLeavesRoomIdle(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(5))
	h.backend.WithGenerateFunc(func(ctx context.Context, _ []llm.Message, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	o := h.orchestrator()
	_, err := o.Prepare(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	testutil.AssertEventuallyTrue(t, func() bool { return h.backend.CallCount() == 1 }, 2*time.Second)
	cancel()

	runErr, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
	assert.ErrorIs(t, runErr, context.Canceled)

	room, err := h.store.GetRoom(context.Background(), h.room.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoomIdle, room.Status)
	assert.Equal(t, []string{"System"}, speakers(h.transcript(t)))
}

// strictTranscripts 在 ctx 已取消时拒绝写入，与 gorm、redis 存储行为一致
type strictTranscripts struct {
	*persistence.MemoryStore
}

func (s strictTranscripts) Append(ctx context.Context, msg *types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Append(ctx, msg)
}

// hangingStream 先输出一段前缀，然后阻塞直到 ctx 取消
type hangingStream struct {
	prefix string
	sent   chan struct{}
}

func (b *hangingStream) Generate(ctx context.Context, _ []llm.Message, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *hangingStream) GenerateStream(ctx context.Context, _ []llm.Message, _ string) (<-chan llm.Fragment, error) {
	out := make(chan llm.Fragment, 1)
	out <- llm.Fragment{Text: b.prefix}
	close(b.sent)
	return out, nil
}

func TestOrchestrator_CancelMidStreamFlushesPrefix(t *testing.T) {
	h := newHarness(t, fixtures.DebateRoom(5))
	h.opts.StreamTurns = true
	backend := &hangingStream{prefix: "说到一半", sent: make(chan struct{})}
	h.deps.Resolver = mocks.NewMockResolver(backend)
	h.deps.Transcripts = strictTranscripts{h.store}

	o := h.orchestrator()
	_, err := o.Prepare(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	_, ok := testutil.WaitForChannel(backend.sent, 2*time.Second)
	require.True(t, ok)
	testutil.AssertEventuallyTrue(t, func() bool { return len(h.sink.Deltas()) == 1 }, 2*time.Second)
	cancel()

	runErr, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
	assert.ErrorIs(t, runErr, context.Canceled)

	room, err := h.store.GetRoom(context.Background(), h.room.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoomIdle, room.Status)
	assert.Equal(t, 1, room.CurrentRounds)

	msgs := h.transcript(t)
	require.Equal(t, []string{"System", "A"}, speakers(msgs))
	assert.Equal(t, "说到一半", msgs[1].Content)
}

func TestOrchestrator_Prepare(t *testing.T) {
	ctx := context.Background()

	t.Run("missing room", func(t *testing.T) {
		h := newHarness(t, fixtures.DebateRoom(3))
		_, err := NewOrchestrator(999, h.deps, h.opts).Prepare(ctx)
		assert.True(t, types.IsCode(err, types.ErrNotFound))
	})

	t.Run("finished room", func(t *testing.T) {
		room := fixtures.DebateRoom(3)
		room.Status = types.RoomFinished
		h := newHarness(t, room)
		_, err := h.orchestrator().Prepare(ctx)
		assert.True(t, types.IsCode(err, types.ErrInvalidState))
	})

	t.Run("no participants", func(t *testing.T) {
		room := fixtures.DebateRoom(3)
		room.Participants = nil
		h := newHarness(t, room)
		_, err := h.orchestrator().Prepare(ctx)
		assert.True(t, types.IsCode(err, types.ErrInvalidState))

		got, err := h.store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, types.RoomIdle, got.Status)
	})

	t.Run("already running", func(t *testing.T) {
		room := fixtures.DebateRoom(3)
		room.Status = types.RoomRunning
		h := newHarness(t, room)
		_, err := h.orchestrator().Prepare(ctx)
		assert.True(t, types.IsCode(err, types.ErrInvalidState))
	})

	t.Run("idle room becomes running", func(t *testing.T) {
		h := newHarness(t, fixtures.DebateRoom(3))
		room, err := h.orchestrator().Prepare(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.RoomRunning, room.Status)

		got, err := h.store.GetRoom(ctx, h.room.ID)
		require.NoError(t, err)
		assert.Equal(t, types.RoomRunning, got.Status)
	})
}

func TestIsTurnFailure(t *testing.T) {
	assert.True(t, IsTurnFailure(types.NewError(types.ErrProviderError, "x")))
	assert.True(t, IsTurnFailure(types.NewError(types.ErrEmptyResult, "x")))
	assert.True(t, IsTurnFailure(types.NewError(types.ErrConfiguration, "x")))
	assert.True(t, IsTurnFailure(fmt.Errorf("wrapped: %w", types.NewError(types.ErrUnsupportedProvider, "x"))))
	assert.False(t, IsTurnFailure(types.NewError(types.ErrInternalError, "x")))
	assert.False(t, IsTurnFailure(errors.New("plain")))
}

// 完整运行 R 轮后，n 位参与者的发言次数为 ⌊R/n⌋ 或 ⌈R/n⌉，靠前者先多一次
func TestProperty_RunFairness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("every participant speaks floor or ceil of R/n times", prop.ForAll(
		func(n, rounds int) bool {
			h := newHarness(t, fixtures.GroupChatRoom(n, rounds))
			h.deps.Logger = nil
			room, err := h.run(t)
			if err != nil || room.Status != types.RoomFinished || room.CurrentRounds != rounds {
				return false
			}

			counts := make(map[string]int)
			for _, m := range h.transcript(t) {
				if !m.IsSystem() {
					counts[m.SenderName]++
				}
			}
			for i, p := range h.room.Participants {
				want := rounds / n
				if i < rounds%n {
					want++
				}
				if counts[p.DisplayName] != want {
					t.Logf("%s spoke %d times, want %d (n=%d, rounds=%d)", p.DisplayName, counts[p.DisplayName], want, n, rounds)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
