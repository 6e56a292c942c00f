package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/testutil/mocks"
	"github.com/BaSui01/agentroom/types"
)

var errUpstream = types.NewError(types.ErrProviderError, "upstream 502").WithHTTPStatus(502)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBreaker("test", cfg, zap.NewNop())
	b.now = clock.Now
	return b, clock
}

func fail(b *Breaker) error {
	return b.Call(context.Background(), func(context.Context) error { return errUpstream })
}

func succeed(b *Breaker) error {
	return b.Call(context.Background(), func(context.Context) error { return nil })
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker("x", Config{HalfOpenMaxCalls: -1}, nil)
	assert.Equal(t, 5, b.config.Threshold)
	assert.Equal(t, 60*time.Second, b.config.ResetTimeout)
	assert.Equal(t, 1, b.config.HalfOpenMaxCalls)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "x", b.Name())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestBreaker_ClosedToOpen(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Threshold: 3})

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, fail(b), errUpstream)
		assert.Equal(t, StateClosed, b.State())
	}
	require.ErrorIs(t, fail(b), errUpstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenRejectsCalls(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Threshold: 1})
	_ = fail(b)

	called := false
	err := b.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Threshold: 1, ResetTimeout: time.Minute})
	_ = fail(b)

	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, succeed(b), ErrCircuitOpen)

	clock.Advance(31 * time.Second)
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Threshold: 1, ResetTimeout: time.Minute})
	_ = fail(b)

	clock.Advance(2 * time.Minute)
	require.ErrorIs(t, fail(b), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	// 重新计时
	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, succeed(b), ErrCircuitOpen)
}

func TestBreaker_HalfOpenMaxCalls(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenMaxCalls: 1})
	_ = fail(b)
	clock.Advance(2 * time.Second)

	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrTooManyCallsInHalfOpen)

	// 取消的试探释放名额但不改变状态
	b.Record(context.Canceled)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Threshold: 3})

	_ = fail(b)
	_ = fail(b)
	require.NoError(t, succeed(b))
	_ = fail(b)
	_ = fail(b)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Threshold: 1})

	for _, err := range []error{
		types.NewError(types.ErrEmptyResult, "blank"),
		types.NewError(types.ErrProviderError, "bad key").WithHTTPStatus(401),
		types.NewError(types.ErrConfiguration, "missing key"),
		context.Canceled,
	} {
		got := b.Call(context.Background(), func(context.Context) error { return err })
		assert.Equal(t, err, got)
		assert.Equal(t, StateClosed, b.State(), err.Error())
	}
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("dial tcp: refused"), true},
		{"502", errUpstream, true},
		{"429", types.NewError(types.ErrProviderError, "slow down").WithHTTPStatus(429), true},
		{"408", types.NewError(types.ErrProviderError, "timeout").WithHTTPStatus(408), true},
		{"400", types.NewError(types.ErrProviderError, "bad").WithHTTPStatus(400), false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped cancel", types.NewError(types.ErrProviderError, "x").WithCause(context.Canceled), false},
		{"unsupported", types.NewError(types.ErrUnsupportedProvider, "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFailure(tt.err))
		})
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	b, clock := newTestBreaker(t, Config{
		Threshold:    1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	_ = fail(b)
	clock.Advance(2 * time.Second)
	_ = succeed(b)
	_ = fail(b)
	b.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"test:closed->open",
		"test:open->half_open",
		"test:half_open->closed",
		"test:closed->open",
		"test:open->closed",
	}, transitions)
}

func TestBreaker_CallTyped(t *testing.T) {
	b, _ := newTestBreaker(t, Config{})
	v, err := Call(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBreaker_ConcurrentSafety(t *testing.T) {
	b := NewBreaker("concurrent", Config{Threshold: 1000}, nil)
	var calls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = b.Call(context.Background(), func(context.Context) error {
					calls.Add(1)
					if (i+j)%2 == 0 {
						return errUpstream
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(1000), calls.Load())
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1}, nil)

	a := r.Get("openai|https://api.openai.com")
	assert.Same(t, a, r.Get("openai|https://api.openai.com"))
	assert.NotSame(t, a, r.Get("ollama|http://localhost:11434"))

	_ = fail(a)
	states := r.States()
	assert.Equal(t, StateOpen, states["openai|https://api.openai.com"])
	assert.Equal(t, StateClosed, states["ollama|http://localhost:11434"])
}

func TestWrapBackend_Generate(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Threshold: 2})
	inner := mocks.NewMockBackend().WithError(errUpstream)
	backend := WrapBackend(inner, b, "openai")

	for i := 0; i < 2; i++ {
		_, err := backend.Generate(context.Background(), nil, "")
		require.ErrorIs(t, err, errUpstream)
	}
	require.Equal(t, StateOpen, b.State())

	_, err := backend.Generate(context.Background(), nil, "")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProviderError))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	e, _ := types.AsError(err)
	assert.Equal(t, "openai", e.Provider)
	assert.Equal(t, 2, inner.CallCount(), "open breaker short-circuits the upstream")
}

func TestWrapBackend_StreamRecordsFinalError(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Threshold: 1})
	inner := mocks.NewMockBackend().WithReplies(
		mocks.Reply{Fragments: []string{"partial"}, Err: errUpstream},
	)
	backend := WrapBackend(inner, b, "deepseek")

	ch, err := backend.GenerateStream(context.Background(), nil, "")
	require.NoError(t, err)

	var text string
	var streamErr error
	for f := range ch {
		if f.Err != nil {
			streamErr = f.Err
			continue
		}
		text += f.Text
	}
	assert.Equal(t, "partial", text)
	assert.ErrorIs(t, streamErr, errUpstream)
	assert.Equal(t, StateOpen, b.State())

	_, err = backend.GenerateStream(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestWrapBackend_NilBreaker(t *testing.T) {
	inner := mocks.NewMockBackend()
	assert.Same(t, inner, WrapBackend(inner, nil, "x"))
}
