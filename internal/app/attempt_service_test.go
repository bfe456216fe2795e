package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"edu-assessment-service/internal/app"
	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/infra/memory"
	"edu-assessment-service/internal/logger"
)

func TestFetchAttemptDetailHidesCorrectness(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)

	if err := f.service.SaveAnswer(ctx, "dist-1", "q1", domain.AnswerValue{OptionIDs: []string{"o2"}}, "u1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	detail, err := f.service.FetchAttemptDetail(ctx, "dist-1", "u1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Title != "Midterm" || detail.DurationMinutes != 30 || detail.ClassName != "Class A" {
		t.Fatalf("unexpected header %+v", detail)
	}
	if len(detail.Questions) != 3 || detail.Questions[0].ID != "q1" || detail.Questions[2].ID != "q3" {
		t.Fatalf("expected template order q1,q2,q3, got %+v", detail.Questions)
	}
	if len(detail.SavedAnswers) != 1 || detail.SavedAnswers[0].QuestionID != "q1" {
		t.Fatalf("expected saved q1, got %+v", detail.SavedAnswers)
	}
}

func TestSaveAnswerValidation(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)

	cases := []struct {
		name     string
		question string
		value    domain.AnswerValue
		want     error
	}{
		{"empty", "q1", domain.AnswerValue{}, domain.ErrEmptyAnswer},
		{"unknown question", "q9", domain.AnswerValue{Text: "x"}, domain.ErrQuestionNotFound},
		{"unknown option", "q1", domain.AnswerValue{OptionIDs: []string{"o9"}}, domain.ErrOptionNotFound},
		{"two options on single", "q1", domain.AnswerValue{OptionIDs: []string{"o1", "o2"}}, domain.ErrInvalidAnswer},
		{"options on text", "q3", domain.AnswerValue{OptionIDs: []string{"o1"}}, domain.ErrInvalidAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := f.service.SaveAnswer(ctx, "dist-1", tc.question, tc.value, "u1"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSubmitAttemptGradesOnce(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)

	answers := []domain.AnswerEntry{
		{QuestionID: "q1", Value: domain.AnswerValue{OptionIDs: []string{"o2"}}},
		{QuestionID: "q2", Value: domain.AnswerValue{OptionIDs: []string{"b", "a"}}},
		{QuestionID: "q3", Value: domain.AnswerValue{Text: "Plants use  PHOTOSYNTHESIS with light"}},
	}
	res, err := f.service.SubmitAttempt(ctx, "dist-1", answers, "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.CorrectCount != 3 || res.TotalQuestions != 3 || res.Score != 100 || !res.Passed {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := f.service.SubmitAttempt(ctx, "dist-1", answers, "u1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	if err := f.service.SaveAnswer(ctx, "dist-1", "q1", domain.AnswerValue{OptionIDs: []string{"o1"}}, "u1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected save after submit to fail, got %v", err)
	}
}

func TestSubmitAttemptPartialCredit(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)

	res, err := f.service.SubmitAttempt(ctx, "dist-1", []domain.AnswerEntry{
		{QuestionID: "q1", Value: domain.AnswerValue{OptionIDs: []string{"o2"}}},
		{QuestionID: "q2", Value: domain.AnswerValue{OptionIDs: []string{"a"}}},
	}, "u2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.CorrectCount != 1 || res.Score != 33.33 || res.Passed {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDeletedDistributionIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	if err := f.distributions.DeleteDistribution(ctx, "dist-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, "dist-1", "q1", domain.AnswerValue{OptionIDs: []string{"o2"}}, "u1"); !errors.Is(err, domain.ErrDistributionNotFound) {
		t.Fatalf("expected not found on save, got %v", err)
	}
	if _, err := f.service.SubmitAttempt(ctx, "dist-1", nil, "u1"); !errors.Is(err, domain.ErrDistributionNotFound) {
		t.Fatalf("expected not found on submit, got %v", err)
	}
}

func TestWindowGatesDetailAndSave(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)

	f.now = openAt.Add(-time.Minute)
	if _, err := f.service.FetchAttemptDetail(ctx, "dist-1", "u1"); !errors.Is(err, domain.ErrNotOpen) {
		t.Fatalf("expected not open, got %v", err)
	}
	f.now = openAt.Add(time.Hour)
	if err := f.service.SaveAnswer(ctx, "dist-1", "q1", domain.AnswerValue{OptionIDs: []string{"o2"}}, "u1"); err != nil {
		t.Fatalf("save inside window: %v", err)
	}

	f.now = closeAt.Add(time.Minute)
	if err := f.service.SaveAnswer(ctx, "dist-1", "q2", domain.AnswerValue{OptionIDs: []string{"a"}}, "u1"); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if _, err := f.service.FetchAttemptDetail(ctx, "dist-1", "u1"); err != nil {
		t.Fatalf("attempt under way should still load after close, got %v", err)
	}
	res, err := f.service.SubmitAttempt(ctx, "dist-1", []domain.AnswerEntry{
		{QuestionID: "q1", Value: domain.AnswerValue{OptionIDs: []string{"o2"}}},
	}, "u1")
	if err != nil {
		t.Fatalf("late timeout submission should be accepted, got %v", err)
	}
	if res.CorrectCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := f.service.AdmitLate(ctx, "dist-1", "u1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
}

func TestFinishedDistributionRejectsFreshAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("past window", func(t *testing.T) {
		f := newAttemptFixture(t)
		f.now = closeAt.Add(24 * time.Hour)
		assertFreshAttemptClosed(t, f)
	})

	t.Run("forced close", func(t *testing.T) {
		f := newAttemptFixture(t)
		d, err := f.distributions.GetDistribution(ctx, "dist-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		finished := domain.StatusFinished
		d.StatusOverride = &finished
		if err := f.distributions.UpdateDistribution(ctx, d); err != nil {
			t.Fatalf("update: %v", err)
		}
		assertFreshAttemptClosed(t, f)
	})
}

func assertFreshAttemptClosed(t *testing.T, f *attemptFixture) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.FetchAttemptDetail(ctx, "dist-1", "late"); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected closed detail, got %v", err)
	}
	_, err := f.service.SubmitAttempt(ctx, "dist-1", []domain.AnswerEntry{
		{QuestionID: "q1", Value: domain.AnswerValue{OptionIDs: []string{"o2"}}},
	}, "late")
	if !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected closed submit, got %v", err)
	}
	if err := f.service.AdmitLate(ctx, "dist-1", "late"); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected closed admission, got %v", err)
	}
}

func TestTemplateEditDoesNotReachScheduledDistribution(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	log := logger.NewNop()
	scheduler := app.NewSchedulerWithClock(f.distributions, f.templates, memory.NewClassDirectory(domain.Class{ID: "class-a", Name: "Class A"}),
		log, 2, func() time.Time { return f.now })
	templates := app.NewTemplateService(f.templates, f.bank, app.NewSelector(), log)

	created, err := scheduler.Create(ctx, app.CreateDistributionRequest{
		TemplateID: "tmpl-1", ClassIDs: []string{"class-a"}, OpenAt: openAt, CloseAt: closeAt,
	})
	if err != nil || len(created.Created) != 1 {
		t.Fatalf("create: %+v %v", created, err)
	}
	distID := created.Created[0].ID

	if _, err := templates.SetQuestions(ctx, "tmpl-1", []string{"q3"}); err != nil {
		t.Fatalf("set questions: %v", err)
	}

	detail, err := f.service.FetchAttemptDetail(ctx, distID, "u1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Questions) != 3 || detail.Questions[0].ID != "q1" {
		t.Fatalf("expected the three questions fixed at scheduling, got %+v", detail.Questions)
	}
	res, err := f.service.SubmitAttempt(ctx, distID, []domain.AnswerEntry{
		{QuestionID: "q1", Value: domain.AnswerValue{OptionIDs: []string{"o2"}}},
	}, "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.TotalQuestions != 3 || res.CorrectCount != 1 {
		t.Fatalf("expected grading against the scheduled list, got %+v", res)
	}

	views, err := scheduler.ListByTemplate(ctx, "tmpl-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, v := range views {
		if v.ID == distID && len(v.QuestionIDs) != 3 {
			t.Fatalf("expected stored snapshot to survive the edit, got %v", v.QuestionIDs)
		}
	}
}

type attemptFixture struct {
	service       *app.AttemptService
	templates     *memory.TemplateStore
	distributions *memory.DistributionStore
	bank          *memory.QuestionBank
	now           time.Time
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	ctx := context.Background()
	templates := memory.NewTemplateStore()
	_ = templates.CreateTemplate(ctx, domain.Template{
		ID: "tmpl-1", CourseID: "course-1", Title: "Midterm",
		QuestionIDs: []string{"q1", "q2", "q3"}, DurationMinutes: 30, PassScore: 50,
	})
	distributions := memory.NewDistributionStore()
	_ = distributions.CreateDistribution(ctx, domain.Distribution{
		ID: "dist-1", TemplateID: "tmpl-1", ClassID: "class-a", Title: "Midterm",
		QuestionIDs: []string{"q1", "q2", "q3"}, DurationMinutes: 30, OpenAt: openAt, CloseAt: closeAt,
	})
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(attemptQuestions()), time.Minute)
	f := &attemptFixture{templates: templates, distributions: distributions, bank: bank, now: openAt.Add(time.Hour)}
	f.service = app.NewAttemptServiceWithClock(distributions, templates, bank,
		memory.NewClassDirectory(domain.Class{ID: "class-a", Name: "Class A"}),
		memory.NewAnswerStore(), logger.NewNop(), func() time.Time { return f.now })
	return f
}

func attemptQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "q1", CourseID: "course-1", Topic: "arithmetic", Type: domain.SingleChoice, Difficulty: domain.Easy,
			Content: "2 + 2?",
			Options: []domain.Option{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4", Correct: true}},
		},
		{
			ID: "q2", CourseID: "course-1", Topic: "sets", Type: domain.MultipleChoice, Difficulty: domain.Hard,
			Content: "Pick the primes",
			Options: []domain.Option{{ID: "a", Text: "2", Correct: true}, {ID: "b", Text: "3", Correct: true}, {ID: "c", Text: "4"}},
		},
		{
			ID: "q3", CourseID: "course-1", Topic: "biology", Type: domain.TextInput, Difficulty: domain.Medium,
			Content: "How do plants make food?", Reference: "photosynthesis, light",
		},
	}
}
