package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Breaker tracks provider:model health across attempts.
type Breaker interface {
	IsCircuitOpen(ctx context.Context, provider, model string) bool
	OpenCircuitBreaker(ctx context.Context, provider, model string)
	CloseCircuitBreaker(ctx context.Context, provider, model string)
}

// backoffFor doubles base per consecutive failure up to max: 30s, 60s, 120s, 240s, 5m.
func backoffFor(failures int, base, max time.Duration) time.Duration {
	backoff := base
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff > max {
			return max
		}
	}
	return backoff
}

// CircuitBreaker manages circuit breaker state in Redis so that every worker
// process shares it.
type CircuitBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(redisClient *redis.Client, baseBackoff, maxBackoff time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		redis:       redisClient,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		now:         time.Now,
	}
}

func breakerKey(provider, model string) string {
	return fmt.Sprintf("cb:%s:%s", provider, model)
}

// OpenCircuitBreaker opens the circuit breaker for a provider:model combination
func (cb *CircuitBreaker) OpenCircuitBreaker(ctx context.Context, provider, model string) {
	key := breakerKey(provider, model)

	failuresStr, _ := cb.redis.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	backoff := backoffFor(failures, cb.baseBackoff, cb.maxBackoff)
	now := cb.now()
	retryAt := now.Add(backoff).Unix()

	pipe := cb.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"failures":  failures,
		"opened_at": now.Unix(),
	})
	pipe.Expire(ctx, key, 10*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("provider", provider).Str("model", model).Msg("failed to persist circuit breaker")
		return
	}

	log.Warn().
		Str("provider", provider).
		Str("model", model).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Time("retry_at", time.Unix(retryAt, 0)).
		Msg("circuit breaker OPENED")
}

// IsCircuitOpen checks if circuit breaker is open for a provider:model
func (cb *CircuitBreaker) IsCircuitOpen(ctx context.Context, provider, model string) bool {
	key := breakerKey(provider, model)

	vals, err := cb.redis.HMGet(ctx, key, "state", "retry_at").Result()
	if err != nil || len(vals) != 2 {
		// No breaker record → closed by default
		return false
	}
	state, _ := vals[0].(string)
	if state != "open" {
		return false
	}
	retryAtStr, _ := vals[1].(string)
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)

	if cb.now().Unix() >= retryAt {
		// Cooldown expired → half-open, let one request through
		cb.redis.HSet(ctx, key, "state", "half_open")
		log.Info().
			Str("provider", provider).
			Str("model", model).
			Msg("circuit breaker moved to HALF-OPEN")
		return false
	}
	return true
}

// CloseCircuitBreaker closes (resets) the circuit breaker on success
func (cb *CircuitBreaker) CloseCircuitBreaker(ctx context.Context, provider, model string) {
	key := breakerKey(provider, model)

	state, _ := cb.redis.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}

	cb.redis.Del(ctx, key)

	log.Info().
		Str("provider", provider).
		Str("model", model).
		Msg("circuit breaker CLOSED (reset)")
}

// MemoryBreaker is an in-process Breaker for single-run commands.
type MemoryBreaker struct {
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	mu    sync.Mutex
	state map[string]memoryState
}

type memoryState struct {
	open     bool
	failures int
	retryAt  time.Time
}

func NewMemoryBreaker(baseBackoff, maxBackoff time.Duration) *MemoryBreaker {
	return &MemoryBreaker{
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		now:         time.Now,
		state:       map[string]memoryState{},
	}
}

func (m *MemoryBreaker) IsCircuitOpen(_ context.Context, provider, model string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state[breakerKey(provider, model)]
	if !ok || !s.open {
		return false
	}
	if !m.now().Before(s.retryAt) {
		s.open = false
		m.state[breakerKey(provider, model)] = s
		return false
	}
	return true
}

func (m *MemoryBreaker) OpenCircuitBreaker(_ context.Context, provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := breakerKey(provider, model)
	s := m.state[key]
	s.failures++
	s.open = true
	s.retryAt = m.now().Add(backoffFor(s.failures, m.baseBackoff, m.maxBackoff))
	m.state[key] = s
	log.Warn().Str("provider", provider).Str("model", model).Int("failures", s.failures).Msg("circuit breaker OPENED")
}

func (m *MemoryBreaker) CloseCircuitBreaker(_ context.Context, provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, breakerKey(provider, model))
}
