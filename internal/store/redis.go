package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore handles Redis operations for realtime fan-out and request
// throttling state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Publish sends payload on a pub/sub channel.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe delivers every payload published on channel to fn until ctx is
// cancelled. ready is called once redis confirms the subscription.
func (s *RedisStore) Subscribe(ctx context.Context, channel string, ready func(), fn func(payload []byte)) error {
	sub := s.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		ready()
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			fn([]byte(msg.Payload))
		}
	}
}

// sessionSeenKey returns the key recording the last request of a profile.
func sessionSeenKey(profileID string) string {
	return fmt.Sprintf("session:%s:seen", profileID)
}

// TouchSession records that profileID made a request now.
func (s *RedisStore) TouchSession(ctx context.Context, profileID string, ttl time.Duration) error {
	return s.client.Set(ctx, sessionSeenKey(profileID), time.Now().Unix(), ttl).Err()
}

// ActiveSessions counts profiles seen within their session TTL.
func (s *RedisStore) ActiveSessions(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "session:*:seen", 500).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
