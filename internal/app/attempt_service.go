package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
)

// AttemptService serves the taker-facing operations: detail, autosave and final submission.
// It holds no session state; deadlines live with the client.
type AttemptService struct {
	distributions DistributionRepository
	templates     TemplateRepository
	bank          QuestionBank
	classes       ClassDirectory
	answers       AnswerRepository
	log           *logger.Logger
	now           func() time.Time
}

func NewAttemptService(distributions DistributionRepository, templates TemplateRepository, bank QuestionBank, classes ClassDirectory, answers AnswerRepository, log *logger.Logger) *AttemptService {
	return NewAttemptServiceWithClock(distributions, templates, bank, classes, answers, log, time.Now)
}

// NewAttemptServiceWithClock is test-only for deterministic windows.
func NewAttemptServiceWithClock(distributions DistributionRepository, templates TemplateRepository, bank QuestionBank, classes ClassDirectory, answers AnswerRepository, log *logger.Logger, now func() time.Time) *AttemptService {
	return &AttemptService{
		distributions: distributions,
		templates:     templates,
		bank:          bank,
		classes:       classes,
		answers:       answers,
		log:           log.With("service", "AttemptService"),
		now:           now,
	}
}

// FetchAttemptDetail returns the questions (without correctness) and the taker's saved answers.
func (s *AttemptService) FetchAttemptDetail(ctx context.Context, distributionID, takerID string) (domain.AttemptDetail, error) {
	d, err := s.distributions.GetDistribution(ctx, distributionID)
	if err != nil {
		return domain.AttemptDetail{}, err
	}
	status := d.StatusAt(s.now())
	if status == domain.StatusUpcoming {
		return domain.AttemptDetail{}, domain.ErrNotOpen
	}
	saved, err := s.answers.ListAnswers(ctx, distributionID, takerID)
	if err != nil {
		return domain.AttemptDetail{}, fmt.Errorf("list answers: %w", err)
	}
	if status == domain.StatusFinished && len(saved) == 0 {
		return domain.AttemptDetail{}, domain.ErrClosed
	}
	tmpl, questions, err := s.loadQuestions(ctx, d)
	if err != nil {
		return domain.AttemptDetail{}, err
	}

	className := ""
	if s.classes != nil {
		class, err := s.classes.GetClass(ctx, d.ClassID)
		switch {
		case err == nil:
			className = class.Name
		case !errors.Is(err, domain.ErrClassNotFound):
			return domain.AttemptDetail{}, err
		}
	}

	detail := domain.AttemptDetail{
		DistributionID:  d.ID,
		Title:           d.Title,
		DurationMinutes: d.DurationMinutes,
		ClassName:       className,
		Questions:       make([]domain.TakerQuestion, 0, len(questions)),
		SavedAnswers:    saved,
	}
	for _, q := range questions {
		detail.Questions = append(detail.Questions, q.ForTaker())
	}
	s.log.Debug("attempt detail served", "distribution_id", d.ID, "template_id", tmpl.ID, "taker_id", takerID)
	return detail, nil
}

// SaveAnswer is the autosave commit of one question.
func (s *AttemptService) SaveAnswer(ctx context.Context, distributionID, questionID string, value domain.AnswerValue, takerID string) error {
	if value.IsEmpty() {
		return domain.ErrEmptyAnswer
	}
	d, err := s.distributions.GetDistribution(ctx, distributionID)
	if err != nil {
		return err
	}
	switch d.StatusAt(s.now()) {
	case domain.StatusUpcoming:
		return domain.ErrNotOpen
	case domain.StatusFinished:
		return domain.ErrClosed
	}
	submitted, err := s.answers.HasSubmission(ctx, distributionID, takerID)
	if err != nil {
		return err
	}
	if submitted {
		return domain.ErrAlreadySubmitted
	}

	_, questions, err := s.loadQuestions(ctx, d)
	if err != nil {
		return err
	}
	var question *domain.Question
	for i := range questions {
		if questions[i].ID == questionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if err := checkAnswerShape(*question, value); err != nil {
		return err
	}

	return s.answers.SaveAnswer(ctx, distributionID, takerID, domain.SavedAnswer{
		QuestionID: questionID,
		Value:      value,
		SavedAt:    s.now(),
	})
}

// SubmitAttempt grades and stores the final answer set. It is accepted once per taker.
func (s *AttemptService) SubmitAttempt(ctx context.Context, distributionID string, answers []domain.AnswerEntry, takerID string) (domain.SubmitResult, error) {
	d, err := s.distributions.GetDistribution(ctx, distributionID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	now := s.now()
	// TODO: reject submissions past the attempt deadline once attempt start times are recorded server-side.
	if d.StatusAt(now) == domain.StatusFinished {
		if err := s.AdmitLate(ctx, distributionID, takerID); err != nil {
			return domain.SubmitResult{}, err
		}
		s.log.Warn("submission after window closed", "distribution_id", d.ID, "taker_id", takerID, "close_at", d.CloseAt)
	}

	tmpl, questions, err := s.loadQuestions(ctx, d)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	result := gradeAttempt(questions, answers, tmpl.PassScore)
	err = s.answers.CreateSubmission(ctx, domain.Submission{
		DistributionID: distributionID,
		TakerID:        takerID,
		Answers:        answers,
		Result:         result,
		SubmittedAt:    now,
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}
	s.log.Info("attempt submitted", "distribution_id", d.ID, "taker_id", takerID, "score", result.Score, "correct", result.CorrectCount)
	return result, nil
}

// AdmitLate decides whether a taker may still reach a finished distribution.
// Only attempts that autosaved at least one answer while the window was open
// are let through, so a closed window never starts a fresh attempt. A taker
// who already submitted is reported as such.
func (s *AttemptService) AdmitLate(ctx context.Context, distributionID, takerID string) error {
	submitted, err := s.answers.HasSubmission(ctx, distributionID, takerID)
	if err != nil {
		return err
	}
	if submitted {
		return domain.ErrAlreadySubmitted
	}
	saved, err := s.answers.ListAnswers(ctx, distributionID, takerID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	if len(saved) == 0 {
		return domain.ErrClosed
	}
	return nil
}

// loadQuestions resolves the question list fixed on the distribution, in order.
// References to questions no longer in the bank are skipped.
func (s *AttemptService) loadQuestions(ctx context.Context, d domain.Distribution) (domain.Template, []domain.Question, error) {
	tmpl, err := s.templates.GetTemplate(ctx, d.TemplateID)
	if err != nil {
		return domain.Template{}, nil, err
	}
	pool, err := s.bank.ListQuestions(ctx, tmpl.CourseID)
	if err != nil {
		return domain.Template{}, nil, fmt.Errorf("load question bank: %w", err)
	}
	byID := make(map[string]domain.Question, len(pool))
	for _, q := range pool {
		byID[q.ID] = q
	}
	questions := make([]domain.Question, 0, len(d.QuestionIDs))
	for _, qid := range d.QuestionIDs {
		q, ok := byID[qid]
		if !ok {
			s.log.Warn("distribution references missing question", "distribution_id", d.ID, "question_id", qid)
			continue
		}
		questions = append(questions, q)
	}
	return tmpl, questions, nil
}
