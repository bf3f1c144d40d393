package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeueAck(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []byte("a")))
	require.NoError(t, q.Enqueue(ctx, []byte("b")))

	depth, dlq, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
	assert.Equal(t, int64(0), dlq)

	id, data, err := q.Dequeue(ctx, "w1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, []byte("a"), data)
	assert.Equal(t, 1, q.Pending())

	require.NoError(t, q.Ack(ctx, id))
	assert.Equal(t, 0, q.Pending())

	_, data, err = q.Dequeue(ctx, "w1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestMemoryQueue_DequeueTimeout(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	id, data, err := q.Dequeue(context.Background(), "w1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Nil(t, data)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), []byte("x")), ErrClosed)
	_, _, err := q.Dequeue(context.Background(), "w1", time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueue_ContextCancelled(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := q.Dequeue(ctx, "w1", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_CancelAndDLQ(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()
	ctx := context.Background()

	ok, err := q.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, q.CancelJob(ctx, "job-1"))
	ok, err = q.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, q.AddDLQ(ctx, []byte("bad"), "decode"))
	_, dlq, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlq)
}

func TestJobEncoding(t *testing.T) {
	th := 0.5
	in := Job{ID: "j1", InputPath: "/tmp/deck.pdf", Chapter: "Intro", Pages: []int{0, 2}, Threshold: &th}
	b, err := in.Encode()
	require.NoError(t, err)

	out, err := DecodeJob(b)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Pages, out.Pages)
	require.NotNil(t, out.Threshold)
	assert.Equal(t, 0.5, *out.Threshold)
	assert.Nil(t, out.Deep)

	_, err = DecodeJob([]byte(`{"chapter":"x"}`))
	assert.ErrorContains(t, err, "missing job_id")
	_, err = DecodeJob([]byte(`not json`))
	assert.Error(t, err)
}
