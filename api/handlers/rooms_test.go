package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/agentroom/agent/conversation"
	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/internal/idempotency"
	"github.com/BaSui01/agentroom/llm"
	"github.com/BaSui01/agentroom/testutil"
	"github.com/BaSui01/agentroom/testutil/fixtures"
	"github.com/BaSui01/agentroom/testutil/mocks"
	"github.com/BaSui01/agentroom/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type envelope[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data"`
	Error   *ErrorInfo `json:"error"`
}

type roomJSON struct {
	ID            uint             `json:"id"`
	Status        types.RoomStatus `json:"status"`
	SessionID     int              `json:"session_id"`
	CurrentRounds int              `json:"current_rounds"`
	Active        bool             `json:"active"`
}

func decode[T any](t *testing.T, body io.Reader) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

type commandLog struct {
	commands []string
	errs     []error
}

func (c *commandLog) RecordRoomCommand(command string, err error) {
	c.commands = append(c.commands, command)
	c.errs = append(c.errs, err)
}

type roomEnv struct {
	store   *persistence.MemoryStore
	backend *mocks.MockBackend
	sup     *conversation.Supervisor
	log     *commandLog
	mux     *http.ServeMux
	room    *types.Room
}

func newRoomEnv(t *testing.T, maxRounds int) *roomEnv {
	t.Helper()
	store := persistence.NewMemoryStore()
	room := fixtures.DebateRoom(maxRounds)
	require.NoError(t, store.CreateRoom(context.Background(), room))

	backend := mocks.NewMockBackend()
	opts := conversation.DefaultOptions()
	opts.Pacing = 0
	sup := conversation.NewSupervisor(conversation.Dependencies{
		Rooms:       store,
		Transcripts: store,
		Sink:        mocks.NewRecordingSink(),
		Resolver:    mocks.NewMockResolver(backend),
		Logger:      zap.NewNop(),
	}, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})

	env := &roomEnv{
		store:   store,
		backend: backend,
		sup:     sup,
		log:     &commandLog{},
		mux:     http.NewServeMux(),
		room:    room,
	}
	idem := idempotency.NewManager(idempotency.NewMemoryStore(0), time.Minute, nil)
	NewRoomHandler(sup, env.log, zap.NewNop()).WithIdempotency(idem).Register(env.mux)
	return env
}

func (e *roomEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func (e *roomEnv) status(t *testing.T) types.RoomStatus {
	t.Helper()
	room, err := e.store.GetRoom(context.Background(), e.room.ID)
	require.NoError(t, err)
	return room.Status
}

func roomPath(room *types.Room, suffix string) string {
	return "/api/v1/rooms/" + strconv.FormatUint(uint64(room.ID), 10) + suffix
}

// =============================================================================
// 🧪 RoomHandler 测试
// =============================================================================

func TestRoomHandler_StartRunsConversation(t *testing.T) {
	env := newRoomEnv(t, 3)

	w := env.do(http.MethodPost, roomPath(env.room, "/start"), "")
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decode[roomJSON](t, w.Body)
	assert.True(t, resp.Success)
	assert.Equal(t, types.RoomRunning, resp.Data.Status)
	assert.True(t, resp.Data.Active)

	testutil.AssertEventuallyTrue(t, func() bool { return env.status(t) == types.RoomFinished }, 2*time.Second)
	testutil.AssertEventuallyTrue(t, func() bool { return !env.sup.Active(env.room.ID) }, 2*time.Second)

	w = env.do(http.MethodGet, roomPath(env.room, "/messages"), "")
	require.Equal(t, http.StatusOK, w.Code)
	transcript := decode[TranscriptView](t, w.Body)
	assert.Equal(t, 1, transcript.Data.SessionID)

	speeches := 0
	for _, m := range transcript.Data.Messages {
		if m.Role == types.RoleAssistant {
			speeches++
		}
	}
	assert.Equal(t, 3, speeches)
	assert.Equal(t, []string{"start"}, env.log.commands)
}

func TestRoomHandler_StartRejectsRunningRoom(t *testing.T) {
	env := newRoomEnv(t, 3)
	require.NoError(t, env.store.SetStatus(context.Background(), env.room.ID, types.RoomRunning))

	w := env.do(http.MethodPost, roomPath(env.room, "/start"), "")

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode[json.RawMessage](t, w.Body)
	assert.False(t, resp.Success)
	assert.Equal(t, string(types.ErrInvalidState), resp.Error.Code)
	require.Len(t, env.log.errs, 1)
	assert.Error(t, env.log.errs[0])
}

func TestRoomHandler_UnknownRoom(t *testing.T) {
	env := newRoomEnv(t, 3)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/rooms/999"},
		{http.MethodPost, "/api/v1/rooms/999/start"},
		{http.MethodPost, "/api/v1/rooms/999/stop"},
		{http.MethodPost, "/api/v1/rooms/999/restart"},
		{http.MethodGet, "/api/v1/rooms/999/messages"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := env.do(tc.method, tc.path, "")
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestRoomHandler_InvalidRoomID(t *testing.T) {
	env := newRoomEnv(t, 3)

	for _, p := range []string{"/api/v1/rooms/abc", "/api/v1/rooms/0", "/api/v1/rooms/-1"} {
		w := env.do(http.MethodGet, p, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, p)
	}
}

func TestRoomHandler_StopIdleRoomIsNoop(t *testing.T) {
	env := newRoomEnv(t, 3)

	w := env.do(http.MethodPost, roomPath(env.room, "/stop"), "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[roomJSON](t, w.Body)
	assert.Equal(t, types.RoomIdle, resp.Data.Status)
	assert.False(t, resp.Data.Active)
}

func TestRoomHandler_StopRunningRoom(t *testing.T) {
	env := newRoomEnv(t, 50)
	release := make(chan struct{})
	env.backend.WithGenerateFunc(func(ctx context.Context, _ []llm.Message, _ string) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "论点", nil
	})

	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, roomPath(env.room, "/start"), "").Code)
	testutil.AssertEventuallyTrue(t, func() bool { return env.backend.CallCount() == 1 }, 2*time.Second)

	w := env.do(http.MethodPost, roomPath(env.room, "/stop"), "")
	require.Equal(t, http.StatusOK, w.Code)
	close(release)

	testutil.AssertEventuallyTrue(t, func() bool { return env.status(t) == types.RoomFinished }, 2*time.Second)
	assert.Equal(t, []string{"start", "stop"}, env.log.commands)
}

func TestRoomHandler_RestartStartsNewSession(t *testing.T) {
	env := newRoomEnv(t, 2)
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, roomPath(env.room, "/start"), "").Code)
	testutil.AssertEventuallyTrue(t, func() bool { return !env.sup.Active(env.room.ID) }, 2*time.Second)

	w := env.do(http.MethodPost, roomPath(env.room, "/restart"), "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[roomJSON](t, w.Body)
	assert.Equal(t, 2, resp.Data.SessionID)
	assert.Equal(t, 0, resp.Data.CurrentRounds)
	assert.Equal(t, types.RoomIdle, resp.Data.Status)

	w = env.do(http.MethodGet, roomPath(env.room, "/messages"), "")
	current := decode[TranscriptView](t, w.Body)
	assert.Empty(t, current.Data.Messages)

	w = env.do(http.MethodGet, roomPath(env.room, "/messages?session=1"), "")
	old := decode[TranscriptView](t, w.Body)
	assert.NotEmpty(t, old.Data.Messages)
	assert.Equal(t, 1, old.Data.SessionID)
}

func TestRoomHandler_ListMessagesInvalidSession(t *testing.T) {
	env := newRoomEnv(t, 2)

	w := env.do(http.MethodGet, roomPath(env.room, "/messages?session=zero"), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomHandler_PostMessage(t *testing.T) {
	env := newRoomEnv(t, 2)

	w := env.do(http.MethodPost, roomPath(env.room, "/messages"), `{"sender":"主持人","content":"请注意时间"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[types.Message](t, w.Body)
	assert.Equal(t, types.RoleUser, resp.Data.Role)
	assert.Equal(t, "主持人", resp.Data.SenderName)
	assert.NotZero(t, resp.Data.ID)

	msgs, err := env.store.List(context.Background(), env.room.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "请注意时间", msgs[0].Content)
}

func TestRoomHandler_PostMessageIdempotent(t *testing.T) {
	env := newRoomEnv(t, 2)
	post := func(key, content string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, roomPath(env.room, "/messages"),
			strings.NewReader(`{"content":"`+content+`"}`))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set(IdempotencyKeyHeader, key)
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, r)
		return w
	}

	first := post("client-42", "第一次")
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))
	firstMsg := decode[types.Message](t, first.Body)

	again := post("client-42", "第一次")
	require.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, firstMsg.Data.ID, decode[types.Message](t, again.Body).Data.ID)

	other := post("client-43", "第二次")
	require.Equal(t, http.StatusCreated, other.Code)

	msgs, err := env.store.List(context.Background(), env.room.ID, 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, []string{"message", "message"}, env.log.commands)

	tooLong := post(strings.Repeat("k", 300), "x")
	assert.Equal(t, http.StatusBadRequest, tooLong.Code)
}

func TestRoomHandler_PostMessageIdempotentFailureNotCached(t *testing.T) {
	env := newRoomEnv(t, 2)
	post := func(path string) int {
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"content":"hi"}`))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set(IdempotencyKeyHeader, "k")
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusNotFound, post("/api/v1/rooms/999/messages"))
	assert.Equal(t, http.StatusNotFound, post("/api/v1/rooms/999/messages"))
	assert.Equal(t, http.StatusCreated, post(roomPath(env.room, "/messages")))
}

func TestRoomHandler_PostMessageValidation(t *testing.T) {
	env := newRoomEnv(t, 2)

	tests := []struct {
		name string
		body string
	}{
		{"blank content", `{"content":"   "}`},
		{"malformed", `{"content":`},
		{"unknown field", `{"content":"hi","role":"system"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, roomPath(env.room, "/messages"), tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	r := httptest.NewRequest(http.MethodPost, roomPath(env.room, "/messages"), strings.NewReader(`{"content":"hi"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomHandler_List(t *testing.T) {
	env := newRoomEnv(t, 2)

	w := env.do(http.MethodGet, "/api/v1/rooms", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]roomJSON](t, w.Body)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, env.room.ID, resp.Data[0].ID)
	assert.False(t, resp.Data[0].Active)
}

// stubRooms 仅用于错误路径
type stubRooms struct {
	RoomService
	err error
}

func (s stubRooms) Rooms(context.Context) ([]types.Room, error) { return nil, s.err }

func TestRoomHandler_ListInternalError(t *testing.T) {
	mux := http.NewServeMux()
	NewRoomHandler(stubRooms{err: errors.New("db gone")}, nil, nil).Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
