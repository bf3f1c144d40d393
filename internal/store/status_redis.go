package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/flashdeck/internal/cards"
)

// RedisStore keeps job state in Redis hashes that expire after ttl.
type RedisStore struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: c, keyNS: "job", ttl: ttl}, nil
}

func (s *RedisStore) key(jobID string) string      { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }
func (s *RedisStore) cardsKey(jobID string) string { return fmt.Sprintf("%s:%s:cards", s.keyNS, jobID) }

func (s *RedisStore) SetStatus(ctx context.Context, jobID string, st Status) error {
	m := map[string]interface{}{
		"status":   st.Status,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		m["metadata"] = string(b)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(jobID), m)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(jobID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetStatus(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{Status: res["status"], Message: res["message"]}
	if p := res["progress"]; p != "" {
		// unparsable progress reads as 0
		st.Progress, _ = strconv.Atoi(p)
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, true, nil
}

// SaveCards stores the whole card set as one JSON value.
func (s *RedisStore) SaveCards(ctx context.Context, jobID string, cs []cards.Card) error {
	if cs == nil {
		cs = []cards.Card{}
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	return s.client.Set(ctx, s.cardsKey(jobID), b, s.ttl).Err()
}

func (s *RedisStore) GetCards(ctx context.Context, jobID string) ([]cards.Card, bool, error) {
	b, err := s.client.Get(ctx, s.cardsKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cs []cards.Card
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, false, fmt.Errorf("decode cards: %w", err)
	}
	return cs, true, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Client returns the underlying Redis client
func (s *RedisStore) Client() *redis.Client { return s.client }
