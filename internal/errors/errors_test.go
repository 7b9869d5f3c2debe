package errors

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickPolicy(retries int) RetryPolicy {
	return RetryPolicy{Retries: retries, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindTransient, Classify(FromStatus(http.StatusServiceUnavailable, nil)))
	assert.Equal(t, KindPermanent, Classify(FromStatus(http.StatusBadRequest, fmt.Errorf("bad schema"))))
	assert.Equal(t, KindTransient, Classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindPermanent, Classify(context.Canceled))
	assert.Equal(t, KindUnknown, Classify(fmt.Errorf("plain")))
	assert.Equal(t, KindUnavailable, Classify(fmt.Errorf("outer: %w", Unavailable(fmt.Errorf("x"), ""))))

	assert.True(t, IsPermanent(fmt.Errorf("plain")))
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(Transient(fmt.Errorf("x"), "")))
	assert.Equal(t, 429, StatusCode(fmt.Errorf("wrap: %w", FromStatus(429, nil))))
}

func TestErrorText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "transient: boom", Transient(fmt.Errorf("boom"), "").Error())
	assert.Equal(t, "Search is down. (boom)", Permanent(fmt.Errorf("boom"), "Search is down.").Error())
	assert.Equal(t, "only message", (&Error{Message: "only message"}).Error())
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "custom", UserMessage(Transient(fmt.Errorf("x"), "custom")))
	assert.Contains(t, UserMessage(FromStatus(429, nil)), "rate limited")
	assert.Contains(t, UserMessage(FromStatus(502, nil)), "temporarily unavailable")
	assert.Equal(t, "The request timed out.", UserMessage(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "plain", UserMessage(fmt.Errorf("plain")))
}

func TestRetryPolicyDelay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{Initial: 10 * time.Millisecond, Max: 35 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 20*time.Millisecond, p.Delay(1))
	assert.Equal(t, 35*time.Millisecond, p.Delay(2))
	assert.Equal(t, 35*time.Millisecond, p.Delay(40), "shift overflow is capped")

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), quickPolicy(3), nil, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(fmt.Errorf("flaky"), "")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), quickPolicy(3), nil, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(fmt.Errorf("nope"), "")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), quickPolicy(2), nil, func(context.Context) (int, error) {
		calls++
		return 0, Transient(fmt.Errorf("down"), "")
	})

	require.ErrorContains(t, err, "3 attempts failed")
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, quickPolicy(2), nil, func(context.Context) (int, error) { return 1, nil })
	require.ErrorIs(t, err, context.Canceled)
}

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

func TestBreakerOpensAndRecovers(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewBreaker("search", BreakerConfig{Threshold: 2, Probes: 1, Cooldown: time.Minute, Now: clock.Now})
	failing := func(context.Context) (int, error) { return 0, fmt.Errorf("boom") }

	_, _ = Guard(context.Background(), b, failing)
	_, _ = Guard(context.Background(), b, failing)
	require.Equal(t, BreakerOpen, b.State())

	_, err := Guard(context.Background(), b, func(context.Context) (int, error) { return 1, nil })
	require.True(t, IsUnavailable(err))

	clock.Advance(time.Minute)
	got, err := Guard(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerReopensWhenProbeFails(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewBreaker("llm", BreakerConfig{Threshold: 1, Cooldown: time.Second, Now: clock.Now})
	b.Record(fmt.Errorf("boom"))
	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.Record(fmt.Errorf("still down"))
	assert.Equal(t, BreakerOpen, b.State())
	assert.True(t, IsUnavailable(b.Allow()))
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	b := NewBreaker("llm", BreakerConfig{Threshold: 1})
	b.Record(fmt.Errorf("caller gave up: %w", context.Canceled))
	assert.Equal(t, BreakerClosed, b.State())
}
