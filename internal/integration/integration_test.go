package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"edu-assessment-service/internal/app"
	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/infra/postgres"
	pgmigrations "edu-assessment-service/internal/infra/postgres/migrations"
	infraredis "edu-assessment-service/internal/infra/redis"
	"edu-assessment-service/internal/logger"
	"edu-assessment-service/internal/session"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
)

func TestAssessmentEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool, logger.NewNop())
	for _, q := range sampleQuestions() {
		if err := loader.SaveQuestion(ctx, q); err != nil {
			t.Fatalf("seed question %s: %v", q.ID, err)
		}
	}
	// a single choice row with two correct options, written around the validating upsert
	if _, err := pool.Exec(ctx, `INSERT INTO questions (id, course_id, topic, type, difficulty, content, options, reference)
		VALUES ('q-bad', 'course-1', 'arithmetic', 'single_choice', 'easy', 'Broken',
			'[{"id":"a","text":"1","correct":true},{"id":"b","text":"2","correct":true}]'::jsonb, '')`); err != nil {
		t.Fatalf("seed invalid row: %v", err)
	}
	loaded, err := loader.LoadQuestions(ctx, "course-1")
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected the invalid row to be skipped, got %+v", loaded)
	}
	store := postgres.NewStore(db)
	if err := store.SaveClass(ctx, domain.Class{ID: "class-a", Name: "Class A"}); err != nil {
		t.Fatalf("seed class: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	bank := infraredis.NewQuestionBank(redisClient, loader, 5*time.Minute)
	log := logger.NewNop()

	templates := app.NewTemplateService(store, bank, app.NewSelector(), log)
	scheduler := app.NewScheduler(store, store, store, log, 2)
	attempts := app.NewAttemptService(store, store, bank, store, store, log)

	tpl, err := templates.Create(ctx, app.NewTemplate{CourseID: "course-1", Title: "Midterm", DurationMinutes: 30, PassScore: 50})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	sel, err := templates.Generate(ctx, tpl.ID, app.GenerateRequest{Need: domain.Matrix{
		domain.SingleChoice: {domain.Easy: 1},
		domain.TextInput:    {domain.Medium: 2},
	}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(sel.QuestionIDs) != 2 || len(sel.Shortfalls) != 1 || sel.Shortfalls[0].Available != 1 {
		t.Fatalf("expected one shortfall on text/medium, got %+v", sel)
	}
	if _, err := templates.Accept(ctx, tpl.ID, sel); err != nil {
		t.Fatalf("accept: %v", err)
	}

	now := time.Now().UTC()
	created, err := scheduler.Create(ctx, app.CreateDistributionRequest{
		TemplateID: tpl.ID,
		ClassIDs:   []string{"class-a", "class-missing"},
		OpenAt:     now.Add(-time.Hour),
		CloseAt:    now.Add(time.Hour),
		AccessCode: "AB12CD",
	})
	if err != nil {
		t.Fatalf("create distribution: %v", err)
	}
	if len(created.Created) != 1 || len(created.Failed) != 1 {
		t.Fatalf("expected one created and one failed class, got %+v", created)
	}
	dist := created.Created[0]
	if dist.Status != domain.StatusOngoing {
		t.Fatalf("expected ongoing, got %s", dist.Status)
	}
	if _, err := scheduler.VerifyAccess(ctx, dist.ID, "AB12CD"); err != nil {
		t.Fatalf("verify access: %v", err)
	}

	// bank and template edits after scheduling do not reach the running distribution
	questions := app.NewQuestionService(loader, bank, log)
	if _, err := questions.SaveQuestion(ctx, domain.Question{
		ID: "q-extra", CourseID: "course-1", Topic: "history", Type: domain.TextInput,
		Difficulty: domain.Hard, Content: "Battle of Hastings year?", Reference: "1066",
	}); err != nil {
		t.Fatalf("save question: %v", err)
	}
	byTopic, err := templates.ListTemplateQuestions(ctx, "course-1")
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(byTopic["history"]) != 1 {
		t.Fatalf("expected cached pool refreshed after save, got %+v", byTopic)
	}
	if _, err := templates.SetQuestions(ctx, tpl.ID, []string{"q-extra"}); err != nil {
		t.Fatalf("set questions: %v", err)
	}

	deadlines := infraredis.NewDeadlineStore(redisClient, time.Hour)
	attempt, err := session.Open(ctx, attempts, deadlines, dist.ID, "u1", session.Options{Confirm: func() bool { return true }})
	if err != nil {
		t.Fatalf("open attempt: %v", err)
	}
	if attempt.Detail.ClassName != "Class A" || len(attempt.Detail.Questions) != 2 {
		t.Fatalf("unexpected detail %+v", attempt.Detail)
	}
	if _, err := attempt.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := attempt.SetAnswer("q-easy", domain.AnswerValue{OptionIDs: []string{"o2"}}); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if err := attempt.Commit(ctx, "q-easy"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// reload picks up the saved answer and the persisted deadline
	resumed, err := session.Open(ctx, attempts, deadlines, dist.ID, "u1", session.Options{Confirm: func() bool { return true }})
	if err != nil {
		t.Fatalf("reopen attempt: %v", err)
	}
	if resumed.Clock.Phase() != session.PhaseDoing || !resumed.Answers.Saved("q-easy") {
		t.Fatalf("expected resumed doing attempt with saved answer")
	}
	if err := resumed.SetAnswer("q-text", domain.AnswerValue{Text: "Light and Photosynthesis"}); err != nil {
		t.Fatalf("set text: %v", err)
	}

	res, err := resumed.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.CorrectCount != 2 || res.Score != 100 || !res.Passed {
		t.Fatalf("expected full marks, got %+v", res)
	}
	if _, err := attempts.SubmitAttempt(ctx, dist.ID, nil, "u1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "assess", "POSTGRES_PASSWORD": "assesspass", "POSTGRES_DB": "assessdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://assess:assesspass@%s:%s/assessdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:         "q-easy",
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
			ID:         "q-text",
			CourseID:   "course-1",
			Topic:      "biology",
			Type:       domain.TextInput,
			Difficulty: domain.Medium,
			Content:    "How do plants make food?",
			Reference:  "photosynthesis, light",
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
