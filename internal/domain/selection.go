package domain

import "fmt"

// Matrix is the number of questions requested per type and difficulty.
type Matrix map[QuestionType]map[Difficulty]int

// Validate rejects unknown cells and negative counts.
func (m Matrix) Validate() error {
	for t, row := range m {
		if !validType(t) {
			return fmt.Errorf("%w: unknown type %q", ErrInvalidMatrix, t)
		}
		for d, n := range row {
			if !validDifficulty(d) {
				return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidMatrix, d)
			}
			if n < 0 {
				return fmt.Errorf("%w: negative count for %s/%s", ErrInvalidMatrix, t, d)
			}
		}
	}
	return nil
}

// Total is the number of questions the matrix asks for.
func (m Matrix) Total() int {
	total := 0
	for _, row := range m {
		for _, n := range row {
			if n > 0 {
				total += n
			}
		}
	}
	return total
}

// Shortfall reports a cell that could not be filled.
type Shortfall struct {
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
	Requested  int          `json:"requested"`
	Available  int          `json:"available"`
}

func (s Shortfall) String() string {
	return fmt.Sprintf("%s/%s: requested %d, available %d", s.Type, s.Difficulty, s.Requested, s.Available)
}

// Selection is a previewed, not yet committed, question subset.
type Selection struct {
	QuestionIDs []string    `json:"questionIds"`
	Shortfalls  []Shortfall `json:"shortfalls"`
}
