package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/agentroom/internal/eventbus"
	"github.com/BaSui01/agentroom/testutil"
	"github.com/BaSui01/agentroom/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type connCounter struct{ n atomic.Int64 }

func (c *connCounter) WSConnected()    { c.n.Add(1) }
func (c *connCounter) WSDisconnected() { c.n.Add(-1) }

type wsEnv struct {
	*roomEnv
	bus     *eventbus.Broadcaster
	tracker *connCounter
	srv     *httptest.Server
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	env := &wsEnv{
		roomEnv: newRoomEnv(t, 2),
		bus:     eventbus.NewBroadcaster(zap.NewNop()),
		tracker: &connCounter{},
	}
	NewWSHandler(env.sup, env.bus, env.tracker, nil, zap.NewNop()).Register(env.mux)
	env.srv = httptest.NewServer(env.mux)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *wsEnv) dial(t *testing.T, roomID uint) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/v1/rooms/" + strconv.FormatUint(uint64(roomID), 10) + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestWSHandler_StreamsRoomEvents(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, env.room.ID)
	testutil.AssertEventuallyTrue(t, func() bool { return env.bus.SubscriberCount(env.room.ID) == 1 }, 2*time.Second)
	assert.EqualValues(t, 1, env.tracker.n.Load())

	msg := &types.Message{ID: 7, RoomID: env.room.ID, SessionID: 1, Role: types.RoleAssistant, SenderName: "A", ParticipantID: 1, Content: "开场"}
	require.NoError(t, env.bus.Publish(context.Background(), env.room.ID, types.NewMessageEvent(msg)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got struct {
		Type types.EventType      `json:"type"`
		Data types.MessagePayload `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &got))

	assert.Equal(t, types.EventMessage, got.Type)
	assert.EqualValues(t, 7, got.Data.ID)
	assert.Equal(t, "A", got.Data.DisplayName)
	assert.Equal(t, "开场", got.Data.Content)
}

func TestWSHandler_OtherRoomEventsNotDelivered(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, env.room.ID)
	testutil.AssertEventuallyTrue(t, func() bool { return env.bus.SubscriberCount(env.room.ID) == 1 }, 2*time.Second)

	other := &types.Message{ID: 1, RoomID: env.room.ID + 1, SessionID: 1, Role: types.RoleSystem, Content: "x"}
	require.NoError(t, env.bus.Publish(context.Background(), env.room.ID+1, types.NewMessageEvent(other)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var v map[string]any
	assert.Error(t, wsjson.Read(ctx, conn, &v))
}

func TestWSHandler_DisconnectUnsubscribes(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, env.room.ID)
	testutil.AssertEventuallyTrue(t, func() bool { return env.bus.SubscriberCount(env.room.ID) == 1 }, 2*time.Second)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	testutil.AssertEventuallyTrue(t, func() bool { return env.bus.SubscriberCount(env.room.ID) == 0 }, 2*time.Second)
	testutil.AssertEventuallyTrue(t, func() bool { return env.tracker.n.Load() == 0 }, 2*time.Second)
}

func TestWSHandler_BroadcasterCloseEndsStream(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, env.room.ID)
	testutil.AssertEventuallyTrue(t, func() bool { return env.bus.SubscriberCount(env.room.ID) == 1 }, 2*time.Second)

	env.bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestWSHandler_UnknownRoom(t *testing.T) {
	env := newWSEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/rooms/999/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
