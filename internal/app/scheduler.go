package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Scheduler binds templates to classes and manages the resulting distributions.
type Scheduler struct {
	distributions DistributionRepository
	templates     TemplateRepository
	classes       ClassDirectory
	log           *logger.Logger
	now           func() time.Time
	workers       int
}

func NewScheduler(distributions DistributionRepository, templates TemplateRepository, classes ClassDirectory, log *logger.Logger, workers int) *Scheduler {
	return NewSchedulerWithClock(distributions, templates, classes, log, workers, time.Now)
}

// NewSchedulerWithClock allows deterministic status derivation in tests.
func NewSchedulerWithClock(distributions DistributionRepository, templates TemplateRepository, classes ClassDirectory, log *logger.Logger, workers int, now func() time.Time) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		distributions: distributions,
		templates:     templates,
		classes:       classes,
		log:           log.With("service", "Scheduler"),
		now:           now,
		workers:       workers,
	}
}

// CreateDistributionRequest schedules a template for several classes at once.
type CreateDistributionRequest struct {
	TemplateID string    `json:"templateId"`
	ClassIDs   []string  `json:"classIds"`
	OpenAt     time.Time `json:"openAt"`
	CloseAt    time.Time `json:"closeAt"`
	// DurationMinutes overrides the template duration when positive.
	DurationMinutes    int    `json:"durationMinutes,omitempty"`
	AccessCode         string `json:"accessCode,omitempty"`
	GenerateAccessCode bool   `json:"generateAccessCode,omitempty"`
}

// ClassFailure explains why one class of a batch got no distribution.
type ClassFailure struct {
	ClassID string `json:"classId"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

// CreateResult reports per-class outcomes of a batch create.
type CreateResult struct {
	Created []domain.DistributionView `json:"created"`
	Failed  []ClassFailure            `json:"failed"`
}

// DistributionPatch lists the fields an edit may change. The class is fixed.
type DistributionPatch struct {
	OpenAt          *time.Time                 `json:"openAt,omitempty"`
	CloseAt         *time.Time                 `json:"closeAt,omitempty"`
	DurationMinutes *int                       `json:"durationMinutes,omitempty"`
	AccessCode      *string                    `json:"accessCode,omitempty"`
	Status          *domain.DistributionStatus `json:"status,omitempty"`
	// ClearStatus drops a stored override so status is derived from the clock again.
	ClearStatus bool `json:"clearStatus,omitempty"`
}

// Create validates the whole request before writing, then writes one row per class.
// Failing classes are listed in the result; the error is reserved for request-level problems.
func (s *Scheduler) Create(ctx context.Context, req CreateDistributionRequest) (CreateResult, error) {
	classIDs := uniqueNonEmpty(req.ClassIDs)
	if len(classIDs) == 0 {
		return CreateResult{}, domain.ErrNoClasses
	}
	window := domain.Window{OpenAt: req.OpenAt, CloseAt: req.CloseAt}
	if err := window.Validate(); err != nil {
		return CreateResult{}, err
	}
	if req.DurationMinutes < 0 {
		return CreateResult{}, domain.ErrInvalidDuration
	}
	code := req.AccessCode
	if code == "" && req.GenerateAccessCode {
		generated, err := GenerateAccessCode()
		if err != nil {
			return CreateResult{}, err
		}
		code = generated
	}
	if err := domain.ValidateAccessCode(code); err != nil {
		return CreateResult{}, err
	}

	tmpl, err := s.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return CreateResult{}, err
	}
	duration := tmpl.DurationMinutes
	if req.DurationMinutes > 0 {
		duration = req.DurationMinutes
	}
	if duration <= 0 {
		return CreateResult{}, domain.ErrInvalidDuration
	}

	now := s.now()
	created := make([]*domain.Distribution, len(classIDs))
	failures := make([]error, len(classIDs))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, classID := range classIDs {
		i, classID := i, classID
		g.Go(func() error {
			if s.classes != nil {
				if _, err := s.classes.GetClass(ctx, classID); err != nil {
					failures[i] = err
					return nil
				}
			}
			d := domain.Distribution{
				ID:              uuid.NewString(),
				TemplateID:      tmpl.ID,
				ClassID:         classID,
				Title:           tmpl.Title,
				QuestionIDs:     append([]string{}, tmpl.QuestionIDs...),
				DurationMinutes: duration,
				OpenAt:          window.OpenAt,
				CloseAt:         window.CloseAt,
				AccessCode:      code,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.distributions.CreateDistribution(ctx, d); err != nil {
				failures[i] = err
				return nil
			}
			created[i] = &d
			return nil
		})
	}
	_ = g.Wait()

	result := CreateResult{Created: []domain.DistributionView{}, Failed: []ClassFailure{}}
	for i, classID := range classIDs {
		if failures[i] != nil {
			s.log.Warn("distribution not created", "template_id", tmpl.ID, "class_id", classID, "error", failures[i])
			result.Failed = append(result.Failed, ClassFailure{ClassID: classID, Reason: failures[i].Error(), Err: failures[i]})
			continue
		}
		result.Created = append(result.Created, created[i].ViewAt(now))
	}
	s.log.Info("distributions created", "template_id", tmpl.ID, "created", len(result.Created), "failed", len(result.Failed), "with_code", code != "")
	return result, nil
}

// Update edits a single distribution. The merged window is validated before writing.
func (s *Scheduler) Update(ctx context.Context, id string, patch DistributionPatch) (domain.DistributionView, error) {
	d, err := s.distributions.GetDistribution(ctx, id)
	if err != nil {
		return domain.DistributionView{}, err
	}
	if patch.OpenAt != nil {
		d.OpenAt = *patch.OpenAt
	}
	if patch.CloseAt != nil {
		d.CloseAt = *patch.CloseAt
	}
	if err := d.Window().Validate(); err != nil {
		return domain.DistributionView{}, err
	}
	if patch.DurationMinutes != nil {
		if *patch.DurationMinutes <= 0 {
			return domain.DistributionView{}, domain.ErrInvalidDuration
		}
		d.DurationMinutes = *patch.DurationMinutes
	}
	if patch.AccessCode != nil {
		if err := domain.ValidateAccessCode(*patch.AccessCode); err != nil {
			return domain.DistributionView{}, err
		}
		d.AccessCode = *patch.AccessCode
	}
	switch {
	case patch.ClearStatus:
		d.StatusOverride = nil
	case patch.Status != nil:
		status, err := domain.ParseStatus(string(*patch.Status))
		if err != nil {
			return domain.DistributionView{}, err
		}
		d.StatusOverride = &status
	}

	now := s.now()
	d.UpdatedAt = now
	if err := s.distributions.UpdateDistribution(ctx, d); err != nil {
		return domain.DistributionView{}, fmt.Errorf("update distribution: %w", err)
	}
	s.log.Info("distribution updated", "distribution_id", id)
	return d.ViewAt(now), nil
}

// Delete removes the distribution. Answers already saved under it are kept.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	if err := s.distributions.DeleteDistribution(ctx, id); err != nil {
		return err
	}
	s.log.Info("distribution deleted", "distribution_id", id)
	return nil
}

func (s *Scheduler) Get(ctx context.Context, id string) (domain.DistributionView, error) {
	d, err := s.distributions.GetDistribution(ctx, id)
	if err != nil {
		return domain.DistributionView{}, err
	}
	return d.ViewAt(s.now()), nil
}

func (s *Scheduler) ListByClass(ctx context.Context, classID string) ([]domain.DistributionView, error) {
	rows, err := s.distributions.ListDistributionsByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return s.views(rows), nil
}

func (s *Scheduler) ListByTemplate(ctx context.Context, templateID string) ([]domain.DistributionView, error) {
	rows, err := s.distributions.ListDistributionsByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.views(rows), nil
}

// VerifyAccess checks code against the access code, then that the distribution is ongoing.
// ErrNotOpen and ErrClosed come with the view: the code was accepted.
func (s *Scheduler) VerifyAccess(ctx context.Context, id, code string) (domain.DistributionView, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return domain.DistributionView{}, err
	}
	if view.AccessCode != "" && subtle.ConstantTimeCompare([]byte(view.AccessCode), []byte(code)) != 1 {
		return domain.DistributionView{}, domain.ErrAccessDenied
	}
	switch view.Status {
	case domain.StatusUpcoming:
		return view, domain.ErrNotOpen
	case domain.StatusFinished:
		return view, domain.ErrClosed
	}
	return view, nil
}

func (s *Scheduler) views(rows []domain.Distribution) []domain.DistributionView {
	now := s.now()
	out := make([]domain.DistributionView, 0, len(rows))
	for _, d := range rows {
		out = append(out, d.ViewAt(now))
	}
	return out
}

// GenerateAccessCode returns a random 6 character code without look-alike characters.
func GenerateAccessCode() (string, error) {
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	code := make([]byte, domain.AccessCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		code[i] = accessCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func uniqueNonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
