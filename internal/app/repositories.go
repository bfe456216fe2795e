package app

import (
	"context"

	"edu-assessment-service/internal/domain"
)

// QuestionBank loads the question pool of a course (from cache/backing store).
type QuestionBank interface {
	ListQuestions(ctx context.Context, courseID string) ([]domain.Question, error)
}

// TemplateRepository persists exam templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t domain.Template) error
	GetTemplate(ctx context.Context, id string) (domain.Template, error)
	UpdateTemplate(ctx context.Context, t domain.Template) error
}

// DistributionRepository persists distributions, one row per class.
type DistributionRepository interface {
	CreateDistribution(ctx context.Context, d domain.Distribution) error
	GetDistribution(ctx context.Context, id string) (domain.Distribution, error)
	UpdateDistribution(ctx context.Context, d domain.Distribution) error
	DeleteDistribution(ctx context.Context, id string) error
	ListDistributionsByClass(ctx context.Context, classID string) ([]domain.Distribution, error)
	ListDistributionsByTemplate(ctx context.Context, templateID string) ([]domain.Distribution, error)
}

// ClassDirectory resolves classes owned by the administration side of the platform.
type ClassDirectory interface {
	GetClass(ctx context.Context, classID string) (domain.Class, error)
}

// AnswerRepository stores autosaved answers and final submissions.
type AnswerRepository interface {
	SaveAnswer(ctx context.Context, distributionID, takerID string, answer domain.SavedAnswer) error
	ListAnswers(ctx context.Context, distributionID, takerID string) ([]domain.SavedAnswer, error)
	// CreateSubmission returns domain.ErrAlreadySubmitted if the attempt was already finalized.
	CreateSubmission(ctx context.Context, sub domain.Submission) error
	HasSubmission(ctx context.Context, distributionID, takerID string) (bool, error)
}
