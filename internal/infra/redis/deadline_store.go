package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadlineStore keeps attempt deadlines in Redis as unix milliseconds.
// Keys expire a grace period after the deadline so abandoned attempts do not accumulate.
type DeadlineStore struct {
	client *redis.Client
	prefix string
	grace  time.Duration
	now    func() time.Time
}

func NewDeadlineStore(client *redis.Client, grace time.Duration) *DeadlineStore {
	return &DeadlineStore{client: client, prefix: "session:", grace: grace, now: time.Now}
}

func (s *DeadlineStore) LoadDeadline(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if isNil(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt deadline %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *DeadlineStore) SaveDeadline(ctx context.Context, key string, deadline time.Time) error {
	ttl := deadline.Sub(s.now()) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	return s.client.Set(ctx, s.prefix+key, strconv.FormatInt(deadline.UnixMilli(), 10), ttl).Err()
}

func (s *DeadlineStore) ClearDeadline(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
