package app

import (
	"math/rand"
	"sync"
	"time"

	"edu-assessment-service/internal/domain"
)

// Selector draws stratified random subsets of a question pool.
// Runs are not reproducible: no seed is kept, so a second run acts as "shuffle again".
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector() *Selector {
	return NewSelectorWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewSelectorWithSource is used by tests that need a fixed sequence.
func NewSelectorWithSource(src rand.Source) *Selector {
	return &Selector{rnd: rand.New(src)}
}

// Select fills every cell of need independently from pool.
// A cell with fewer candidates than requested yields all of them plus a shortfall;
// it never borrows from another cell. topics, when non-empty, restricts the pool.
func (s *Selector) Select(pool []domain.Question, need domain.Matrix, topics []string) (domain.Selection, error) {
	if err := need.Validate(); err != nil {
		return domain.Selection{}, err
	}

	buckets := bucketize(pool, topics)
	selection := domain.Selection{
		QuestionIDs: make([]string, 0, need.Total()),
		Shortfalls:  []domain.Shortfall{},
	}

	for _, t := range domain.QuestionTypes {
		for _, d := range domain.Difficulties {
			want := need[t][d]
			if want <= 0 {
				continue
			}
			candidates := buckets[cell{t, d}]
			if len(candidates) < want {
				selection.QuestionIDs = append(selection.QuestionIDs, candidates...)
				selection.Shortfalls = append(selection.Shortfalls, domain.Shortfall{
					Type:       t,
					Difficulty: d,
					Requested:  want,
					Available:  len(candidates),
				})
				continue
			}
			selection.QuestionIDs = append(selection.QuestionIDs, s.sample(candidates, want)...)
		}
	}
	return selection, nil
}

func (s *Selector) sample(ids []string, n int) []string {
	shuffled := append([]string(nil), ids...)
	s.mu.Lock()
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.mu.Unlock()
	return shuffled[:n]
}

type cell struct {
	t domain.QuestionType
	d domain.Difficulty
}

// bucketize groups question IDs by cell, dropping duplicates and off-topic questions.
func bucketize(pool []domain.Question, topics []string) map[cell][]string {
	allowed := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		allowed[topic] = struct{}{}
	}

	seen := make(map[string]struct{}, len(pool))
	buckets := make(map[cell][]string)
	for _, q := range pool {
		if len(allowed) > 0 {
			if _, ok := allowed[q.Topic]; !ok {
				continue
			}
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		key := cell{q.Type, q.Difficulty}
		buckets[key] = append(buckets[key], q.ID)
	}
	return buckets
}
