package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"edu-assessment-service/internal/domain"
)

func TestQuestionBankCaches(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestions())}
	bank := NewQuestionBank(loader, time.Minute)

	questions, err := bank.ListQuestions(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions for course-1, got %d", len(questions))
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := bank.ListQuestions(context.Background(), "course-1"); err != nil {
		t.Fatalf("list questions 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}

	if err := bank.Invalidate(context.Background(), "course-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := bank.ListQuestions(context.Background(), "course-1"); err != nil {
		t.Fatalf("list questions 3: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionBankExpires(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestions())}
	bank := NewQuestionBank(loader, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bank.clock = func() time.Time { return now }

	_, _ = bank.ListQuestions(context.Background(), "course-1")
	now = now.Add(2 * time.Minute)
	_, _ = bank.ListQuestions(context.Background(), "course-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

type countingLoader struct {
	QuestionLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	l.calls.Add(1)
	return l.QuestionLoader.LoadQuestions(ctx, courseID)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:         "q1",
			CourseID:   "course-1",
			Topic:      "arithmetic",
			Type:       domain.SingleChoice,
			Difficulty: domain.Easy,
			Content:    "What is 2 + 2?",
			Options: []domain.Option{
				{ID: "o1", Text: "3"},
				{ID: "o2", Text: "4", Correct: true},
			},
		},
		{
			ID:         "q2",
			CourseID:   "course-1",
			Topic:      "biology",
			Type:       domain.TextInput,
			Difficulty: domain.Medium,
			Content:    "How do plants make food?",
			Reference:  "photosynthesis",
		},
		{
			ID:         "q3",
			CourseID:   "course-2",
			Topic:      "history",
			Type:       domain.TextInput,
			Difficulty: domain.Hard,
			Reference:  "1066",
		},
	}
}
