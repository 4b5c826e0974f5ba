package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converse-relay/internal/domain"
)

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(rs *recordedSleep) Policy {
	p := DefaultPolicy()
	p.Sleep = rs.sleep
	return p
}

var errDial = Transient(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})

func TestDo_SucceedsAfterTwoTransientFailures(t *testing.T) {
	rs := &recordedSleep{}
	calls := 0
	v, err := Do(context.Background(), testPolicy(rs), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errDial
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, rs.delays)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	for _, retries := range []int{0, 1, 2, 4} {
		rs := &recordedSleep{}
		p := testPolicy(rs)
		p.MaxRetries = retries
		calls := 0

		_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
			calls++
			return 0, errDial
		})

		var ne *domain.NetworkExhaustedError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, retries+1, calls)
		assert.Equal(t, retries+1, ne.Attempts)
		assert.Len(t, rs.delays, retries)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Contains(t, err.Error(), "attempts")
	}
}

func TestDo_NonTransientIsNotRetried(t *testing.T) {
	rs := &recordedSleep{}
	boom := errors.New("bad request body")
	calls := 0
	_, err := Do(context.Background(), testPolicy(rs), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.delays)
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	calls := 0
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		calls++
		return 0, errDial
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryHook(t *testing.T) {
	rs := &recordedSleep{}
	p := testPolicy(rs)
	var seen []int
	p.OnRetry = func(attempt int, err error, delay time.Duration) { seen = append(seen, attempt) }
	_, _ = Do(context.Background(), p, func(ctx context.Context) (int, error) { return 0, errDial })
	assert.Equal(t, []int{1, 2}, seen)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(Transient(context.Canceled)))
	assert.True(t, IsTransient(errDial))
	assert.True(t, IsTransient(&net.DNSError{Err: "no such host", Name: "api.example"}))
}

func TestSleep_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
