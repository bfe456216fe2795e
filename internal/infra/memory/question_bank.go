package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"edu-assessment-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a course question pool from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error)
}

// QuestionBank caches course pools with TTL to avoid repeated DB hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

func (b *QuestionBank) ListQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	if questions, ok := b.lookup(courseID); ok {
		return questions, nil
	}

	result, err, _ := b.sf.Do(courseID, func() (interface{}, error) {
		if questions, ok := b.lookup(courseID); ok {
			return questions, nil
		}

		questions, err := b.loader.LoadQuestions(ctx, courseID)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[courseID] = cachedPool{
			questions: questions,
			expiresAt: b.clock().Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops a cached pool after instructors edit the bank.
func (b *QuestionBank) Invalidate(_ context.Context, courseID string) error {
	b.mu.Lock()
	delete(b.cache, courseID)
	b.mu.Unlock()
	return nil
}

func (b *QuestionBank) lookup(courseID string) ([]domain.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[courseID]
	if !ok || !entry.expiresAt.After(b.clock()) {
		return nil, false
	}
	return entry.questions, true
}

// StaticQuestionLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuestionLoader struct {
	mu        sync.RWMutex
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: append([]domain.Question(nil), questions...)}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, courseID string) ([]domain.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range l.questions {
		if q.CourseID == courseID {
			out = append(out, q)
		}
	}
	return out, nil
}

// SaveQuestion replaces the question with the same id or appends it.
func (l *StaticQuestionLoader) SaveQuestion(_ context.Context, q domain.Question) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.questions {
		if l.questions[i].ID == q.ID {
			l.questions[i] = q
			return nil
		}
	}
	l.questions = append(l.questions, q)
	return nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
