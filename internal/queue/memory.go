package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrClosed is returned by MemoryQueue after Close.
var ErrClosed = errors.New("queue closed")

type memMsg struct {
	id   string
	data []byte
}

// MemoryQueue is an in-process Queue for local runs and tests. Messages are
// handed out once; Ack only drops them from the pending set.
type MemoryQueue struct {
	ch chan memMsg

	mu        sync.Mutex
	seq       int64
	pending   map[string]memMsg
	cancelled map[string]struct{}
	dlq       [][]byte
	closed    bool
	done      chan struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemoryQueue{
		ch:        make(chan memMsg, capacity),
		pending:   make(map[string]memMsg),
		cancelled: make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.seq++
	msg := memMsg{id: strconv.FormatInt(q.seq, 10), data: append([]byte(nil), payload...)}
	q.mu.Unlock()

	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case msg := <-q.ch:
		q.mu.Lock()
		q.pending[msg.id] = msg
		q.mu.Unlock()
		return msg.id, msg.data, nil
	case <-expire:
		return "", nil, nil
	case <-q.done:
		return "", nil, ErrClosed
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(_ context.Context, msgID string) error {
	q.mu.Lock()
	delete(q.pending, msgID)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) CancelJob(_ context.Context, jobID string) error {
	q.mu.Lock()
	q.cancelled[jobID] = struct{}{}
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) IsCancelled(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[jobID]
	return ok, nil
}

func (q *MemoryQueue) AddDLQ(_ context.Context, payload []byte, _ string) error {
	q.mu.Lock()
	q.dlq = append(q.dlq, append([]byte(nil), payload...))
	q.mu.Unlock()
	return nil
}

// Depths reports queued and dead-lettered message counts.
func (q *MemoryQueue) Depths(context.Context) (int64, int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ch)), int64(len(q.dlq)), nil
}

// Pending reports messages dequeued but not yet acked.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Ping reports ErrClosed once the queue is closed.
func (q *MemoryQueue) Ping(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
