package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionBank caches course question pools in Redis and falls back to a loader on cache miss.
// A pool is stored as one JSON document: SET bank:{courseID}:questions <json> EX ttl
type QuestionBank struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) ListQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	key := b.key(courseID)
	if questions, ok := b.fromCache(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := b.sf.Do(courseID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := b.fromCache(ctx, key); ok {
			return questions, nil
		}

		questions, err := b.loader.LoadQuestions(ctx, courseID)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("encode question pool: %w", err)
		}
		// best-effort fill; a failed write only costs another load
		_ = b.client.Set(ctx, key, raw, b.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached pool of a course after the bank changed.
func (b *QuestionBank) Invalidate(ctx context.Context, courseID string) error {
	return b.client.Del(ctx, b.key(courseID)).Err()
}

func (b *QuestionBank) fromCache(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (b *QuestionBank) key(courseID string) string {
	return "bank:" + courseID + ":questions"
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
