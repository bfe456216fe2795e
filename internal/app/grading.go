package app

import (
	"fmt"
	"math"
	"strings"

	"edu-assessment-service/internal/domain"
)

// gradeAttempt scores answers against the ordered question list. Unanswered
// questions count as wrong; answers to questions outside the list are ignored.
func gradeAttempt(questions []domain.Question, answers []domain.AnswerEntry, passScore float64) domain.SubmitResult {
	byQuestion := make(map[string]domain.AnswerValue, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.Value
	}

	correct := 0
	for _, q := range questions {
		value, ok := byQuestion[q.ID]
		if ok && isCorrect(q, value) {
			correct++
		}
	}

	score := 0.0
	if len(questions) > 0 {
		score = math.Round(float64(correct)/float64(len(questions))*10000) / 100
	}
	return domain.SubmitResult{
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: len(questions),
		Passed:         score >= passScore,
	}
}

func isCorrect(q domain.Question, value domain.AnswerValue) bool {
	switch q.Type {
	case domain.SingleChoice:
		if len(value.OptionIDs) != 1 {
			return false
		}
		for _, opt := range q.Options {
			if opt.ID == value.OptionIDs[0] {
				return opt.Correct
			}
		}
		return false
	case domain.MultipleChoice:
		want := map[string]bool{}
		for _, opt := range q.Options {
			if opt.Correct {
				want[opt.ID] = true
			}
		}
		got := map[string]bool{}
		for _, id := range value.OptionIDs {
			got[id] = true
		}
		if len(got) != len(want) {
			return false
		}
		for id := range got {
			if !want[id] {
				return false
			}
		}
		return true
	case domain.TextInput:
		return matchesKeywords(q.Reference, value.Text)
	}
	return false
}

// matchesKeywords treats the reference as comma-separated keywords that must all
// appear in the answer, ignoring case and surrounding whitespace.
func matchesKeywords(reference, text string) bool {
	answer := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if answer == "" {
		return false
	}
	matched := 0
	for _, kw := range strings.Split(reference, ",") {
		kw = strings.ToLower(strings.Join(strings.Fields(kw), " "))
		if kw == "" {
			continue
		}
		if !strings.Contains(answer, kw) {
			return false
		}
		matched++
	}
	return matched > 0
}

// checkAnswerShape rejects answers that cannot belong to q.
func checkAnswerShape(q domain.Question, value domain.AnswerValue) error {
	switch q.Type {
	case domain.SingleChoice, domain.MultipleChoice:
		if q.Type == domain.SingleChoice && len(value.OptionIDs) != 1 {
			return fmt.Errorf("%w: %s takes exactly one option", domain.ErrInvalidAnswer, q.ID)
		}
		if len(value.OptionIDs) == 0 {
			return fmt.Errorf("%w: %s takes options", domain.ErrInvalidAnswer, q.ID)
		}
		for _, id := range value.OptionIDs {
			if !hasOption(q, id) {
				return fmt.Errorf("%w: %s on %s", domain.ErrOptionNotFound, id, q.ID)
			}
		}
	case domain.TextInput:
		if len(value.OptionIDs) > 0 {
			return fmt.Errorf("%w: %s takes text", domain.ErrInvalidAnswer, q.ID)
		}
	}
	return nil
}

func hasOption(q domain.Question, id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}
