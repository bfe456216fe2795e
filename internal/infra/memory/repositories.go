package memory

import (
	"context"
	"sort"
	"sync"

	"edu-assessment-service/internal/domain"
)

// TemplateStore is an in-memory app.TemplateRepository.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]domain.Template
}

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[string]domain.Template)}
}

func (s *TemplateStore) CreateTemplate(_ context.Context, t domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (s *TemplateStore) GetTemplate(_ context.Context, id string) (domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (s *TemplateStore) UpdateTemplate(_ context.Context, t domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return domain.ErrTemplateNotFound
	}
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func cloneTemplate(t domain.Template) domain.Template {
	t.QuestionIDs = append([]string{}, t.QuestionIDs...)
	return t
}

func cloneDistribution(d domain.Distribution) domain.Distribution {
	d.QuestionIDs = append([]string{}, d.QuestionIDs...)
	if d.StatusOverride != nil {
		status := *d.StatusOverride
		d.StatusOverride = &status
	}
	return d
}

// DistributionStore is an in-memory app.DistributionRepository.
type DistributionStore struct {
	mu   sync.RWMutex
	rows map[string]domain.Distribution
}

func NewDistributionStore() *DistributionStore {
	return &DistributionStore{rows: make(map[string]domain.Distribution)}
}

func (s *DistributionStore) CreateDistribution(_ context.Context, d domain.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[d.ID] = cloneDistribution(d)
	return nil
}

func (s *DistributionStore) GetDistribution(_ context.Context, id string) (domain.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.rows[id]
	if !ok {
		return domain.Distribution{}, domain.ErrDistributionNotFound
	}
	return cloneDistribution(d), nil
}

func (s *DistributionStore) UpdateDistribution(_ context.Context, d domain.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.rows[d.ID]
	if !ok {
		return domain.ErrDistributionNotFound
	}
	// the question snapshot is fixed at creation
	d.QuestionIDs = prev.QuestionIDs
	s.rows[d.ID] = cloneDistribution(d)
	return nil
}

func (s *DistributionStore) DeleteDistribution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.ErrDistributionNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *DistributionStore) ListDistributionsByClass(_ context.Context, classID string) ([]domain.Distribution, error) {
	return s.filter(func(d domain.Distribution) bool { return d.ClassID == classID }), nil
}

func (s *DistributionStore) ListDistributionsByTemplate(_ context.Context, templateID string) ([]domain.Distribution, error) {
	return s.filter(func(d domain.Distribution) bool { return d.TemplateID == templateID }), nil
}

func (s *DistributionStore) filter(keep func(domain.Distribution) bool) []domain.Distribution {
	s.mu.RLock()
	out := make([]domain.Distribution, 0)
	for _, d := range s.rows {
		if keep(d) {
			out = append(out, cloneDistribution(d))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenAt.Equal(out[j].OpenAt) {
			return out[i].OpenAt.Before(out[j].OpenAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AnswerStore is an in-memory app.AnswerRepository.
type AnswerStore struct {
	mu          sync.RWMutex
	answers     map[attemptKey]map[string]domain.SavedAnswer
	submissions map[attemptKey]domain.Submission
}

type attemptKey struct {
	distributionID string
	takerID        string
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		answers:     make(map[attemptKey]map[string]domain.SavedAnswer),
		submissions: make(map[attemptKey]domain.Submission),
	}
}

func (s *AnswerStore) SaveAnswer(_ context.Context, distributionID, takerID string, answer domain.SavedAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{distributionID, takerID}
	if s.answers[key] == nil {
		s.answers[key] = make(map[string]domain.SavedAnswer)
	}
	answer.Value = answer.Value.Clone()
	s.answers[key][answer.QuestionID] = answer
	return nil
}

func (s *AnswerStore) ListAnswers(_ context.Context, distributionID, takerID string) ([]domain.SavedAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	saved := s.answers[attemptKey{distributionID, takerID}]
	out := make([]domain.SavedAnswer, 0, len(saved))
	for _, a := range saved {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *AnswerStore) CreateSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{sub.DistributionID, sub.TakerID}
	if _, ok := s.submissions[key]; ok {
		return domain.ErrAlreadySubmitted
	}
	s.submissions[key] = sub
	return nil
}

func (s *AnswerStore) HasSubmission(_ context.Context, distributionID, takerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.submissions[attemptKey{distributionID, takerID}]
	return ok, nil
}

// ClassDirectory resolves classes from a static map (useful for tests/demos).
type ClassDirectory struct {
	classes map[string]domain.Class
}

func NewClassDirectory(classes ...domain.Class) *ClassDirectory {
	dir := &ClassDirectory{classes: make(map[string]domain.Class, len(classes))}
	for _, c := range classes {
		dir.classes[c.ID] = c
	}
	return dir
}

func (d *ClassDirectory) GetClass(_ context.Context, classID string) (domain.Class, error) {
	c, ok := d.classes[classID]
	if !ok {
		return domain.Class{}, domain.ErrClassNotFound
	}
	return c, nil
}
