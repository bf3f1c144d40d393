package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_InflightBound(t *testing.T) {
	l := New(Options{MaxInflight: 2, Burst: 10})

	r1, ok := l.tryAcquire("openai", "gpt-4o")
	require.True(t, ok)
	r2, ok := l.tryAcquire("OpenAI", "GPT-4o")
	require.True(t, ok)
	_, ok = l.tryAcquire("openai", "gpt-4o")
	assert.False(t, ok)

	// other models have their own slots
	r3, ok := l.tryAcquire("openai", "gpt-4o-mini")
	assert.True(t, ok)
	r3()

	r1()
	r4, ok := l.tryAcquire("openai", "gpt-4o")
	assert.True(t, ok)
	r2()
	r4()
}

func TestAcquire_ContextCancelledWhileFull(t *testing.T) {
	l := New(Options{MaxInflight: 1})
	release, err := l.Acquire(context.Background(), "anthropic", "m")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "anthropic", "m")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_RateLimited(t *testing.T) {
	l := New(Options{RequestsPerSecond: 1, Burst: 1, MaxInflight: 4})
	release, err := l.Acquire(context.Background(), "openai", "m")
	require.NoError(t, err)
	release()

	// bucket is empty; a wait past the deadline fails fast and frees the slot
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "openai", "m")
	require.Error(t, err)
	assert.Len(t, l.slots("openai", "m"), 0)
}

func TestAcquire_Unlimited(t *testing.T) {
	l := New(Options{})
	for i := 0; i < 5; i++ {
		release, err := l.Acquire(context.Background(), "openai", "m")
		require.NoError(t, err)
		release()
	}
}
