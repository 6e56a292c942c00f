package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentroom/types"
)

func testEvent(content string) types.Event {
	return types.NewMessageEvent(&types.Message{ID: 1, RoomID: 1, SessionID: 1, Role: types.RoleSystem, Content: content})
}

func receive(t *testing.T, ch <-chan types.Event) types.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return types.Event{}
}

func TestBroadcaster_PublishToRoomSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, _ := b.Subscribe(ctx, 1)
	ch2, _ := b.Subscribe(ctx, 1)
	other, _ := b.Subscribe(ctx, 2)
	assert.Equal(t, 2, b.SubscriberCount(1))

	require.NoError(t, b.Publish(ctx, 1, testEvent("hello")))

	for _, ch := range []<-chan types.Event{ch1, ch2} {
		ev := receive(t, ch)
		assert.Equal(t, types.EventMessage, ev.Type)
		assert.Equal(t, "hello", ev.Data.(types.MessagePayload).Content)
	}
	select {
	case <-other:
		t.Fatal("room 2 subscriber must not receive room 1 events")
	default:
	}
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	assert.NoError(t, b.Publish(context.Background(), 42, testEvent("nobody")))
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx, 1)
	for i := 0; i < subscriberBufferSize+10; i++ {
		require.NoError(t, b.Publish(ctx, 1, testEvent("x")))
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_UnsubscribeOnContextCancel(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := b.Subscribe(ctx, 1)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed after cancel")
	}
	assert.Zero(t, b.SubscriberCount(1))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, id := b.Subscribe(context.Background(), 1)
	b.Unsubscribe(1, id)
	b.Unsubscribe(1, id)
	b.Unsubscribe(9, "missing")

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(nil)
	ch1, _ := b.Subscribe(context.Background(), 1)
	ch2, _ := b.Subscribe(context.Background(), 2)
	b.Close()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)
}
