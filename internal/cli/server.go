package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edu-assessment-service/internal/app"
	"edu-assessment-service/internal/config"
	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/infra/memory"
	"edu-assessment-service/internal/infra/postgres"
	infraredis "edu-assessment-service/internal/infra/redis"
	"edu-assessment-service/internal/logger"
	transport "edu-assessment-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type repositories struct {
	templates     app.TemplateRepository
	distributions app.DistributionRepository
	classes       app.ClassDirectory
	answers       app.AnswerRepository
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	static := memory.NewStaticQuestionLoader(sampleQuestions())
	var (
		loader memory.QuestionLoader = static
		writer app.QuestionWriter    = static
	)
	repos := memoryRepositories()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pgLoader := postgres.NewQuestionLoader(pool, log)
		loader, writer = pgLoader, pgLoader

		db := postgres.Open(cfg.Postgres.URL)
		defer db.Close()
		store := postgres.NewStore(db)
		repos = repositories{templates: store, distributions: store, classes: store, answers: store}
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var bank cachedQuestionBank
	if redisClient != nil {
		bank = infraredis.NewQuestionBank(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewQuestionBank(loader, bankTTL)
	}

	templates := app.NewTemplateService(repos.templates, bank, app.NewSelector(), log)
	scheduler := app.NewScheduler(repos.distributions, repos.templates, repos.classes, log, cfg.Workers())
	questions := app.NewQuestionService(writer, bank, log)
	attempts := app.NewAttemptService(repos.distributions, repos.templates, bank, repos.classes, repos.answers, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewAPIHandler(templates, questions, scheduler, log).Register(mux)
	mux.HandleFunc("/ws/attempt", transport.NewAttemptHandler(attempts, scheduler, log).ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would cut long-lived attempt websockets
	}

	go func() {
		log.Info("starting assessment service", "port", finalPort, "postgres", cfg.Postgres.URL != "", "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type cachedQuestionBank interface {
	app.QuestionBank
	app.QuestionCache
}

func memoryRepositories() repositories {
	return repositories{
		templates:     memory.NewTemplateStore(),
		distributions: memory.NewDistributionStore(),
		classes:       memory.NewClassDirectory(domain.Class{ID: "class-demo", Name: "Demo class"}),
		answers:       memory.NewAnswerStore(),
	}
}

// sampleQuestions provides a minimal demo bank; configure postgres for real data.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "demo-q1", CourseID: "course-demo", Topic: "arithmetic",
			Type: domain.SingleChoice, Difficulty: domain.Easy,
			Content: "What is 2 + 2?",
			Options: []domain.Option{
				{ID: "o1", Text: "3"},
				{ID: "o2", Text: "4", Correct: true},
				{ID: "o3", Text: "5"},
			},
		},
		{
			ID: "demo-q2", CourseID: "course-demo", Topic: "arithmetic",
			Type: domain.MultipleChoice, Difficulty: domain.Medium,
			Content: "Which numbers are prime?",
			Options: []domain.Option{
				{ID: "o1", Text: "2", Correct: true},
				{ID: "o2", Text: "4"},
				{ID: "o3", Text: "7", Correct: true},
			},
		},
		{
			ID: "demo-q3", CourseID: "course-demo", Topic: "biology",
			Type: domain.TextInput, Difficulty: domain.Hard,
			Content:   "How do plants turn light into food?",
			Reference: "photosynthesis, light",
		},
	}
}
