package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
	"github.com/google/uuid"
)

// TemplateService builds exam templates by hand or from selector runs.
type TemplateService struct {
	templates TemplateRepository
	bank      QuestionBank
	selector  *Selector
	log       *logger.Logger
	now       func() time.Time
}

func NewTemplateService(templates TemplateRepository, bank QuestionBank, selector *Selector, log *logger.Logger) *TemplateService {
	return &TemplateService{
		templates: templates,
		bank:      bank,
		selector:  selector,
		log:       log.With("service", "TemplateService"),
		now:       time.Now,
	}
}

// NewTemplate holds the parameters of an empty template.
type NewTemplate struct {
	CourseID        string  `json:"courseId"`
	Title           string  `json:"title"`
	DurationMinutes int     `json:"durationMinutes"`
	PassScore       float64 `json:"passScore"`
}

// TemplatePatch lists the template parameters that may change after creation.
type TemplatePatch struct {
	Title           *string  `json:"title,omitempty"`
	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	PassScore       *float64 `json:"passScore,omitempty"`
}

// GenerateRequest asks the selector for a preview.
type GenerateRequest struct {
	Need   domain.Matrix `json:"need"`
	Topics []string      `json:"topics,omitempty"`
}

// Create stores a template without questions.
func (s *TemplateService) Create(ctx context.Context, in NewTemplate) (domain.Template, error) {
	now := s.now()
	t := domain.Template{
		ID:              uuid.NewString(),
		CourseID:        in.CourseID,
		Title:           strings.TrimSpace(in.Title),
		QuestionIDs:     []string{},
		DurationMinutes: in.DurationMinutes,
		PassScore:       in.PassScore,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateTemplate(t); err != nil {
		return domain.Template{}, err
	}
	if err := s.templates.CreateTemplate(ctx, t); err != nil {
		return domain.Template{}, fmt.Errorf("create template: %w", err)
	}
	s.log.Info("template created", "template_id", t.ID, "course_id", t.CourseID)
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, id string) (domain.Template, error) {
	return s.templates.GetTemplate(ctx, id)
}

// Update changes title, duration or pass score. Existing distributions keep the values they copied.
func (s *TemplateService) Update(ctx context.Context, id string, patch TemplatePatch) (domain.Template, error) {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.DurationMinutes != nil {
		t.DurationMinutes = *patch.DurationMinutes
	}
	if patch.PassScore != nil {
		t.PassScore = *patch.PassScore
	}
	if err := validateTemplate(t); err != nil {
		return domain.Template{}, err
	}
	t.UpdatedAt = s.now()
	if err := s.templates.UpdateTemplate(ctx, t); err != nil {
		return domain.Template{}, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// SetQuestions replaces the ordered question list. Every ID must belong to the
// template's course; repeated IDs keep their first position.
func (s *TemplateService) SetQuestions(ctx context.Context, id string, questionIDs []string) (domain.Template, error) {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	pool, err := s.bank.ListQuestions(ctx, t.CourseID)
	if err != nil {
		return domain.Template{}, fmt.Errorf("load question bank: %w", err)
	}
	known := make(map[string]struct{}, len(pool))
	for _, q := range pool {
		known[q.ID] = struct{}{}
	}

	ordered := make([]string, 0, len(questionIDs))
	seen := make(map[string]struct{}, len(questionIDs))
	for _, qid := range questionIDs {
		if _, ok := known[qid]; !ok {
			return domain.Template{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, qid)
		}
		if _, dup := seen[qid]; dup {
			continue
		}
		seen[qid] = struct{}{}
		ordered = append(ordered, qid)
	}

	t.QuestionIDs = ordered
	t.UpdatedAt = s.now()
	if err := s.templates.UpdateTemplate(ctx, t); err != nil {
		return domain.Template{}, fmt.Errorf("update template: %w", err)
	}
	s.log.Info("template questions set", "template_id", t.ID, "count", len(ordered))
	return t, nil
}

// Generate previews a stratified selection for the template. Nothing is stored.
func (s *TemplateService) Generate(ctx context.Context, id string, req GenerateRequest) (domain.Selection, error) {
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return domain.Selection{}, err
	}
	pool, err := s.bank.ListQuestions(ctx, t.CourseID)
	if err != nil {
		return domain.Selection{}, fmt.Errorf("load question bank: %w", err)
	}
	sel, err := s.selector.Select(pool, req.Need, req.Topics)
	if err != nil {
		return domain.Selection{}, err
	}
	for _, short := range sel.Shortfalls {
		s.log.Warn("selection shortfall", "template_id", id, "cell", short.String())
	}
	return sel, nil
}

// Accept commits a previewed selection into the template.
func (s *TemplateService) Accept(ctx context.Context, id string, sel domain.Selection) (domain.Template, error) {
	return s.SetQuestions(ctx, id, sel.QuestionIDs)
}

// ListTemplateQuestions returns the course bank grouped by topic.
func (s *TemplateService) ListTemplateQuestions(ctx context.Context, courseID string) (map[string][]domain.Question, error) {
	pool, err := s.bank.ListQuestions(ctx, courseID)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]domain.Question)
	for _, q := range pool {
		grouped[q.Topic] = append(grouped[q.Topic], q)
	}
	return grouped, nil
}

func validateTemplate(t domain.Template) error {
	switch {
	case t.CourseID == "":
		return fmt.Errorf("%w: course is required", domain.ErrInvalidTemplate)
	case t.Title == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidTemplate)
	case t.DurationMinutes <= 0:
		return domain.ErrInvalidDuration
	case t.PassScore < 0 || t.PassScore > 100:
		return fmt.Errorf("%w: pass score must be between 0 and 100", domain.ErrInvalidTemplate)
	}
	return nil
}
