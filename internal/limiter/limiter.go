// Package limiter paces provider calls: a token bucket per provider and a
// bounded number of in-flight requests per provider:model.
package limiter

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

type Options struct {
	RequestsPerSecond float64
	Burst             int
	MaxInflight       int
}

type Limiter struct {
	opts Options
	mu   sync.Mutex
	rate map[string]*rate.Limiter
	sem  map[string]chan struct{}
}

func New(opts Options) *Limiter {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{opts: opts, rate: map[string]*rate.Limiter{}, sem: map[string]chan struct{}{}}
}

func (l *Limiter) bucket(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(provider)
	rl, ok := l.rate[key]
	if !ok {
		limit := rate.Inf
		if l.opts.RequestsPerSecond > 0 {
			limit = rate.Limit(l.opts.RequestsPerSecond)
		}
		rl = rate.NewLimiter(limit, l.opts.Burst)
		l.rate[key] = rl
	}
	return rl
}

func (l *Limiter) slots(provider, model string) chan struct{} {
	key := strings.ToLower(provider) + ":" + strings.ToLower(model)
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sem[key]
	if !ok {
		ch = make(chan struct{}, l.opts.MaxInflight)
		l.sem[key] = ch
	}
	return ch
}

// Acquire blocks until the provider rate allows a request and a slot for
// provider:model is free. The returned release must be called when done.
func (l *Limiter) Acquire(ctx context.Context, provider, model string) (func(), error) {
	ch := l.slots(provider, model)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := l.bucket(provider).Wait(ctx); err != nil {
		<-ch
		return nil, err
	}
	return func() { <-ch }, nil
}

// tryAcquire tries to reserve a slot without waiting.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (l *Limiter) tryAcquire(provider, model string) (func(), bool) {
	ch := l.slots(provider, model)
	select {
	case ch <- struct{}{}:
		if !l.bucket(provider).Allow() {
			<-ch
			return func() {}, false
		}
		return func() { <-ch }, true
	default:
		return func() {}, false
	}
}
