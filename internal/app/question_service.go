package app

import (
	"context"
	"fmt"
	"strings"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
)

// QuestionWriter persists bank questions.
type QuestionWriter interface {
	SaveQuestion(ctx context.Context, q domain.Question) error
}

// QuestionCache is a course pool cache that must forget a course after its bank changed.
type QuestionCache interface {
	Invalidate(ctx context.Context, courseID string) error
}

// QuestionService edits the question bank and keeps the cached pools coherent.
type QuestionService struct {
	writer QuestionWriter
	cache  QuestionCache
	log    *logger.Logger
}

func NewQuestionService(writer QuestionWriter, cache QuestionCache, log *logger.Logger) *QuestionService {
	return &QuestionService{writer: writer, cache: cache, log: log.With("service", "QuestionService")}
}

// SaveQuestion upserts q and drops the cached pool of its course.
// Distributions keep their own question list, so edits only reach new reads of the bank.
func (s *QuestionService) SaveQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q.CourseID = strings.TrimSpace(q.CourseID)
	if q.CourseID == "" {
		return domain.Question{}, fmt.Errorf("%w: missing course", domain.ErrInvalidQuestion)
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	if err := s.writer.SaveQuestion(ctx, q); err != nil {
		return domain.Question{}, err
	}
	if err := s.cache.Invalidate(ctx, q.CourseID); err != nil {
		// the pool refreshes on its own once the cache TTL runs out
		s.log.Warn("question cache not invalidated", "course_id", q.CourseID, "error", err)
	}
	s.log.Info("question saved", "question_id", q.ID, "course_id", q.CourseID, "type", q.Type)
	return q, nil
}
