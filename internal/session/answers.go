package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"edu-assessment-service/internal/domain"
)

// Saver is the autosave collaborator.
type Saver interface {
	SaveAnswer(ctx context.Context, distributionID, questionID string, value domain.AnswerValue, takerID string) error
}

// AnswerStore buffers answer edits and tracks which ones the server acknowledged.
// Commits are independent per question and may complete in any order.
type AnswerStore struct {
	distributionID string
	takerID        string
	saver          Saver

	mu        sync.Mutex
	answers   map[string]domain.AnswerValue
	revisions map[string]uint64
	saved     map[string]bool
	flagged   map[int]struct{}
	locked    bool
}

func NewAnswerStore(distributionID, takerID string, saver Saver) *AnswerStore {
	return &AnswerStore{
		distributionID: distributionID,
		takerID:        takerID,
		saver:          saver,
		answers:        make(map[string]domain.AnswerValue),
		revisions:      make(map[string]uint64),
		saved:          make(map[string]bool),
		flagged:        make(map[int]struct{}),
	}
}

// Load seeds the store with answers the server already holds, marked saved.
func (s *AnswerStore) Load(saved []domain.SavedAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range saved {
		s.answers[a.QuestionID] = a.Value.Clone()
		s.saved[a.QuestionID] = true
	}
}

// Set records a local edit. It always clears the saved flag of that question.
func (s *AnswerStore) Set(questionID string, value domain.AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return ErrLocked
	}
	s.answers[questionID] = value.Clone()
	s.revisions[questionID]++
	s.saved[questionID] = false
	return nil
}

// Commit sends the current value of one question. Empty values are rejected
// before any call. On failure the question stays unsaved; nothing is retried.
func (s *AnswerStore) Commit(ctx context.Context, questionID string) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return ErrLocked
	}
	value, ok := s.answers[questionID]
	if !ok || value.IsEmpty() {
		s.mu.Unlock()
		return domain.ErrEmptyAnswer
	}
	value = value.Clone()
	rev := s.revisions[questionID]
	s.mu.Unlock()

	if err := s.saver.SaveAnswer(ctx, s.distributionID, questionID, value, s.takerID); err != nil {
		return fmt.Errorf("save answer %s: %w", questionID, err)
	}

	s.mu.Lock()
	// an edit made while the call was in flight stays unsaved
	if s.revisions[questionID] == rev {
		s.saved[questionID] = true
	}
	s.mu.Unlock()
	return nil
}

func (s *AnswerStore) Value(questionID string) (domain.AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[questionID]
	return v.Clone(), ok
}

// Saved reports whether the current value of questionID is acknowledged by the server.
func (s *AnswerStore) Saved(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[questionID]
}

// Unsaved lists answered questions whose current value is not acknowledged.
func (s *AnswerStore) Unsaved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	for qid, v := range s.answers {
		if !s.saved[qid] && !v.IsEmpty() {
			out = append(out, qid)
		}
	}
	sort.Strings(out)
	return out
}

// Entries snapshots the in-memory answers, saved or not, one entry per question in order.
func (s *AnswerStore) Entries(questionIDs []string) []domain.AnswerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AnswerEntry, 0, len(questionIDs))
	for _, qid := range questionIDs {
		out = append(out, domain.AnswerEntry{QuestionID: qid, Value: s.answers[qid].Clone()})
	}
	return out
}

// ToggleFlag marks or unmarks a question index for review and returns the new state.
func (s *AnswerStore) ToggleFlag(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flagged[index]; ok {
		delete(s.flagged, index)
		return false
	}
	s.flagged[index] = struct{}{}
	return true
}

func (s *AnswerStore) Flagged() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.flagged))
	for i := range s.flagged {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Lock makes the store read-only.
func (s *AnswerStore) Lock() {
	s.mu.Lock()
	s.locked = true
	s.mu.Unlock()
}

func (s *AnswerStore) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}
