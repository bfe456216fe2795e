package app_test

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"edu-assessment-service/internal/app"
	"edu-assessment-service/internal/domain"
)

func TestSelectExactWhenPoolSuffices(t *testing.T) {
	pool := append(makeQuestions("se", domain.SingleChoice, domain.Easy, "algebra", 10),
		makeQuestions("mm", domain.MultipleChoice, domain.Medium, "algebra", 6)...)
	pool = append(pool, makeQuestions("th", domain.TextInput, domain.Hard, "geometry", 4)...)

	need := domain.Matrix{
		domain.SingleChoice:   {domain.Easy: 4},
		domain.MultipleChoice: {domain.Medium: 6},
		domain.TextInput:      {domain.Hard: 2},
	}
	sel, err := app.NewSelector().Select(pool, need, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.QuestionIDs) != need.Total() {
		t.Fatalf("expected %d ids, got %d", need.Total(), len(sel.QuestionIDs))
	}
	if len(sel.Shortfalls) != 0 {
		t.Fatalf("expected no shortfall, got %+v", sel.Shortfalls)
	}
	assertUnique(t, sel.QuestionIDs)
	counts := countByPrefix(sel.QuestionIDs)
	if counts["se"] != 4 || counts["mm"] != 6 || counts["th"] != 2 {
		t.Fatalf("unexpected per-cell counts %v", counts)
	}
}

func TestSelectReportsShortfallWithoutBorrowing(t *testing.T) {
	pool := append(makeQuestions("se", domain.SingleChoice, domain.Easy, "t1", 10),
		makeQuestions("mh", domain.MultipleChoice, domain.Hard, "t1", 3)...)

	need := domain.Matrix{
		domain.SingleChoice:   {domain.Easy: 5},
		domain.MultipleChoice: {domain.Hard: 5},
	}
	sel, err := app.NewSelector().Select(pool, need, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	counts := countByPrefix(sel.QuestionIDs)
	if counts["se"] != 5 {
		t.Fatalf("expected 5 single/easy, got %d", counts["se"])
	}
	if counts["mh"] != 3 {
		t.Fatalf("expected all 3 multiple/hard, got %d", counts["mh"])
	}
	if len(sel.QuestionIDs) != 8 {
		t.Fatalf("expected 8 ids total, got %d", len(sel.QuestionIDs))
	}
	want := domain.Shortfall{Type: domain.MultipleChoice, Difficulty: domain.Hard, Requested: 5, Available: 3}
	if len(sel.Shortfalls) != 1 || sel.Shortfalls[0] != want {
		t.Fatalf("expected shortfall %+v, got %+v", want, sel.Shortfalls)
	}
}

func TestSelectEmptyCellIsShortfall(t *testing.T) {
	pool := makeQuestions("se", domain.SingleChoice, domain.Easy, "t1", 2)
	sel, err := app.NewSelector().Select(pool, domain.Matrix{
		domain.SingleChoice: {domain.Easy: 2},
		domain.TextInput:    {domain.Medium: 1},
	}, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.QuestionIDs) != 2 {
		t.Fatalf("expected other cells served, got %v", sel.QuestionIDs)
	}
	if len(sel.Shortfalls) != 1 || sel.Shortfalls[0].Available != 0 {
		t.Fatalf("expected empty-cell shortfall, got %+v", sel.Shortfalls)
	}
}

func TestSelectRestrictsToTopicsAndDeduplicates(t *testing.T) {
	pool := append(makeQuestions("alg", domain.SingleChoice, domain.Easy, "algebra", 3),
		makeQuestions("geo", domain.SingleChoice, domain.Easy, "geometry", 3)...)
	pool = append(pool, pool[0])

	sel, err := app.NewSelector().Select(pool, domain.Matrix{domain.SingleChoice: {domain.Easy: 5}}, []string{"algebra"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.QuestionIDs) != 3 {
		t.Fatalf("expected the 3 distinct algebra questions, got %v", sel.QuestionIDs)
	}
	assertUnique(t, sel.QuestionIDs)
	for _, id := range sel.QuestionIDs {
		if !strings.HasPrefix(id, "alg") {
			t.Fatalf("off-topic question selected: %s", id)
		}
	}
	if len(sel.Shortfalls) != 1 || sel.Shortfalls[0].Available != 3 {
		t.Fatalf("expected shortfall with 3 available, got %+v", sel.Shortfalls)
	}
}

func TestSelectRegenerateMayDiffer(t *testing.T) {
	pool := makeQuestions("se", domain.SingleChoice, domain.Easy, "t1", 30)
	need := domain.Matrix{domain.SingleChoice: {domain.Easy: 5}}
	selector := app.NewSelector()

	first, err := selector.Select(pool, need, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := 0; i < 50; i++ {
		next, err := selector.Select(pool, need, nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if key(next.QuestionIDs) != key(first.QuestionIDs) {
			return
		}
	}
	t.Fatalf("expected regeneration to produce a different subset")
}

func TestSelectRejectsInvalidMatrix(t *testing.T) {
	_, err := app.NewSelector().Select(nil, domain.Matrix{"essay": {domain.Easy: 1}}, nil)
	if !errors.Is(err, domain.ErrInvalidMatrix) {
		t.Fatalf("expected invalid matrix, got %v", err)
	}
	_, err = app.NewSelector().Select(nil, domain.Matrix{domain.SingleChoice: {domain.Easy: -1}}, nil)
	if !errors.Is(err, domain.ErrInvalidMatrix) {
		t.Fatalf("expected invalid matrix for negative count, got %v", err)
	}
}

func makeQuestions(prefix string, typ domain.QuestionType, diff domain.Difficulty, topic string, n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:         fmt.Sprintf("%s-%02d", prefix, i),
			CourseID:   "course-1",
			Topic:      topic,
			Type:       typ,
			Difficulty: diff,
		})
	}
	return out
}

func countByPrefix(ids []string) map[string]int {
	counts := map[string]int{}
	for _, id := range ids {
		counts[strings.SplitN(id, "-", 2)[0]]++
	}
	return counts
}

func assertUnique(t *testing.T, ids []string) {
	t.Helper()
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s in %v", id, ids)
		}
		seen[id] = true
	}
}

func key(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
