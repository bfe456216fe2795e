package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edu-assessment-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open returns a bun handle over the pg driver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store implements the template, distribution, answer and class repositories on bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type templateRow struct {
	bun.BaseModel `bun:"table:templates"`

	ID              string    `bun:"id,pk"`
	CourseID        string    `bun:"course_id"`
	Title           string    `bun:"title"`
	QuestionIDs     []string  `bun:"question_ids,type:jsonb"`
	DurationMinutes int       `bun:"duration_minutes"`
	PassScore       float64   `bun:"pass_score"`
	CreatedAt       time.Time `bun:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at"`
}

type distributionRow struct {
	bun.BaseModel `bun:"table:distributions"`

	ID              string    `bun:"id,pk"`
	TemplateID      string    `bun:"template_id"`
	ClassID         string    `bun:"class_id"`
	Title           string    `bun:"title"`
	QuestionIDs     []string  `bun:"question_ids,type:jsonb"`
	DurationMinutes int       `bun:"duration_minutes"`
	OpenAt          time.Time `bun:"open_at"`
	CloseAt         time.Time `bun:"close_at"`
	AccessCode      string    `bun:"access_code"`
	StatusOverride  *string   `bun:"status_override"`
	CreatedAt       time.Time `bun:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	DistributionID string             `bun:"distribution_id,pk"`
	TakerID        string             `bun:"taker_id,pk"`
	QuestionID     string             `bun:"question_id,pk"`
	Value          domain.AnswerValue `bun:"value,type:jsonb"`
	SavedAt        time.Time          `bun:"saved_at"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	DistributionID string               `bun:"distribution_id,pk"`
	TakerID        string               `bun:"taker_id,pk"`
	Answers        []domain.AnswerEntry `bun:"answers,type:jsonb"`
	Score          float64              `bun:"score"`
	CorrectCount   int                  `bun:"correct_count"`
	TotalQuestions int                  `bun:"total_questions"`
	Passed         bool                 `bun:"passed"`
	SubmittedAt    time.Time            `bun:"submitted_at"`
}

type classRow struct {
	bun.BaseModel `bun:"table:classes"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

func (s *Store) CreateTemplate(ctx context.Context, t domain.Template) error {
	row := toTemplateRow(t)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	var row templateRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	if err != nil {
		return domain.Template{}, fmt.Errorf("get template: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t domain.Template) error {
	row := toTemplateRow(t)
	res, err := s.db.NewUpdate().Model(&row).ExcludeColumn("created_at").WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return mustAffect(res, domain.ErrTemplateNotFound)
}

func (s *Store) CreateDistribution(ctx context.Context, d domain.Distribution) error {
	row := toDistributionRow(d)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

func (s *Store) GetDistribution(ctx context.Context, id string) (domain.Distribution, error) {
	var row distributionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Distribution{}, domain.ErrDistributionNotFound
	}
	if err != nil {
		return domain.Distribution{}, fmt.Errorf("get distribution: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateDistribution rewrites the mutable columns; class and template never change.
func (s *Store) UpdateDistribution(ctx context.Context, d domain.Distribution) error {
	row := toDistributionRow(d)
	res, err := s.db.NewUpdate().Model(&row).
		Column("title", "duration_minutes", "open_at", "close_at", "access_code", "status_override", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	return mustAffect(res, domain.ErrDistributionNotFound)
}

func (s *Store) DeleteDistribution(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*distributionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete distribution: %w", err)
	}
	return mustAffect(res, domain.ErrDistributionNotFound)
}

func (s *Store) ListDistributionsByClass(ctx context.Context, classID string) ([]domain.Distribution, error) {
	return s.listDistributions(ctx, "class_id = ?", classID)
}

func (s *Store) ListDistributionsByTemplate(ctx context.Context, templateID string) ([]domain.Distribution, error) {
	return s.listDistributions(ctx, "template_id = ?", templateID)
}

func (s *Store) listDistributions(ctx context.Context, where string, arg string) ([]domain.Distribution, error) {
	var rows []distributionRow
	if err := s.db.NewSelect().Model(&rows).Where(where, arg).Order("open_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	out := make([]domain.Distribution, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// SaveAnswer upserts; the last save of a question wins.
func (s *Store) SaveAnswer(ctx context.Context, distributionID, takerID string, answer domain.SavedAnswer) error {
	row := answerRow{
		DistributionID: distributionID,
		TakerID:        takerID,
		QuestionID:     answer.QuestionID,
		Value:          answer.Value,
		SavedAt:        answer.SavedAt,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (distribution_id, taker_id, question_id) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("saved_at = EXCLUDED.saved_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *Store) ListAnswers(ctx context.Context, distributionID, takerID string) ([]domain.SavedAnswer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("distribution_id = ?", distributionID).
		Where("taker_id = ?", takerID).
		Order("question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.SavedAnswer, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.SavedAnswer{QuestionID: r.QuestionID, Value: r.Value, SavedAt: r.SavedAt})
	}
	return out, nil
}

// CreateSubmission relies on the primary key so concurrent finalizations store exactly one row.
func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	row := submissionRow{
		DistributionID: sub.DistributionID,
		TakerID:        sub.TakerID,
		Answers:        sub.Answers,
		Score:          sub.Result.Score,
		CorrectCount:   sub.Result.CorrectCount,
		TotalQuestions: sub.Result.TotalQuestions,
		Passed:         sub.Result.Passed,
		SubmittedAt:    sub.SubmittedAt,
	}
	if row.Answers == nil {
		row.Answers = []domain.AnswerEntry{}
	}
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT (distribution_id, taker_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return mustAffect(res, domain.ErrAlreadySubmitted)
}

func (s *Store) HasSubmission(ctx context.Context, distributionID, takerID string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*submissionRow)(nil)).
		Where("distribution_id = ?", distributionID).
		Where("taker_id = ?", takerID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check submission: %w", err)
	}
	return exists, nil
}

func (s *Store) GetClass(ctx context.Context, classID string) (domain.Class, error) {
	var row classRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", classID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Class{}, domain.ErrClassNotFound
	}
	if err != nil {
		return domain.Class{}, fmt.Errorf("get class: %w", err)
	}
	return domain.Class{ID: row.ID, Name: row.Name}, nil
}

// SaveClass upserts a class mirrored from the administration side.
func (s *Store) SaveClass(ctx context.Context, c domain.Class) error {
	row := classRow{ID: c.ID, Name: c.Name}
	_, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO UPDATE").Set("name = EXCLUDED.name").Exec(ctx)
	if err != nil {
		return fmt.Errorf("save class: %w", err)
	}
	return nil
}

func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toTemplateRow(t domain.Template) templateRow {
	ids := t.QuestionIDs
	if ids == nil {
		ids = []string{}
	}
	return templateRow{
		ID:              t.ID,
		CourseID:        t.CourseID,
		Title:           t.Title,
		QuestionIDs:     ids,
		DurationMinutes: t.DurationMinutes,
		PassScore:       t.PassScore,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (r templateRow) toDomain() domain.Template {
	return domain.Template{
		ID:              r.ID,
		CourseID:        r.CourseID,
		Title:           r.Title,
		QuestionIDs:     r.QuestionIDs,
		DurationMinutes: r.DurationMinutes,
		PassScore:       r.PassScore,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func toDistributionRow(d domain.Distribution) distributionRow {
	ids := d.QuestionIDs
	if ids == nil {
		ids = []string{}
	}
	row := distributionRow{
		ID:              d.ID,
		TemplateID:      d.TemplateID,
		ClassID:         d.ClassID,
		Title:           d.Title,
		QuestionIDs:     ids,
		DurationMinutes: d.DurationMinutes,
		OpenAt:          d.OpenAt,
		CloseAt:         d.CloseAt,
		AccessCode:      d.AccessCode,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.StatusOverride != nil {
		s := string(*d.StatusOverride)
		row.StatusOverride = &s
	}
	return row
}

func (r distributionRow) toDomain() domain.Distribution {
	d := domain.Distribution{
		ID:              r.ID,
		TemplateID:      r.TemplateID,
		ClassID:         r.ClassID,
		Title:           r.Title,
		QuestionIDs:     r.QuestionIDs,
		DurationMinutes: r.DurationMinutes,
		OpenAt:          r.OpenAt.UTC(),
		CloseAt:         r.CloseAt.UTC(),
		AccessCode:      r.AccessCode,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.StatusOverride != nil {
		status := domain.DistributionStatus(*r.StatusOverride)
		d.StatusOverride = &status
	}
	return d
}
