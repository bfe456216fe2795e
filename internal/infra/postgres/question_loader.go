package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads course question pools from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewQuestionLoader(pool *pgxpool.Pool, log *logger.Logger) *QuestionLoader {
	if log == nil {
		log = logger.NewNop()
	}
	return &QuestionLoader{pool: pool, log: log.With("component", "question_loader")}
}

// LoadQuestions returns the course pool. Rows that break the question
// invariants are skipped so they never reach selection or grading.
func (l *QuestionLoader) LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, course_id, topic, type, difficulty, content, options, reference
		FROM questions WHERE course_id=$1 ORDER BY id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q                 domain.Question
			qType, difficulty string
			rawOptions        []byte
		)
		if err := rows.Scan(&q.ID, &q.CourseID, &q.Topic, &qType, &difficulty, &q.Content, &rawOptions, &q.Reference); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		q.Difficulty = domain.Difficulty(difficulty)
		if len(rawOptions) > 0 {
			if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options of %s: %w", q.ID, err)
			}
		}
		if err := q.Validate(); err != nil {
			l.log.Warn("skipping invalid bank question", "course_id", courseID, "question_id", q.ID, "error", err)
			continue
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

// SaveQuestion upserts a question into the bank.
func (l *QuestionLoader) SaveQuestion(ctx context.Context, q domain.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	options := q.Options
	if options == nil {
		options = []domain.Option{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO questions (id, course_id, topic, type, difficulty, content, options, reference)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, topic=EXCLUDED.topic, type=EXCLUDED.type,
			difficulty=EXCLUDED.difficulty, content=EXCLUDED.content, options=EXCLUDED.options, reference=EXCLUDED.reference`,
		q.ID, q.CourseID, q.Topic, string(q.Type), string(q.Difficulty), q.Content, string(raw), q.Reference)
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}
