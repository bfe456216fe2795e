package domain

import (
	"fmt"
	"strings"
)

// AccessCodeLength is the fixed length of a distribution access code.
const AccessCodeLength = 6

// ValidateAccessCode accepts an empty code (no code required) or exactly 6 ASCII letters/digits.
func ValidateAccessCode(code string) error {
	if code == "" {
		return nil
	}
	if len(code) != AccessCodeLength {
		return ErrInvalidAccessCode
	}
	for _, r := range code {
		isDigit := r >= '0' && r <= '9'
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isDigit && !isLetter {
			return ErrInvalidAccessCode
		}
	}
	return nil
}

// IsEmpty reports whether the value carries no answer at all.
func (v AnswerValue) IsEmpty() bool {
	if strings.TrimSpace(v.Text) != "" {
		return false
	}
	for _, id := range v.OptionIDs {
		if id != "" {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no memory with v.
func (v AnswerValue) Clone() AnswerValue {
	out := AnswerValue{Text: v.Text}
	if v.OptionIDs != nil {
		out.OptionIDs = append([]string(nil), v.OptionIDs...)
	}
	return out
}

// Validate checks the option invariants of the question type.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	}
	if !validDifficulty(q.Difficulty) {
		return fmt.Errorf("%w: %s has unknown difficulty %q", ErrInvalidQuestion, q.ID, q.Difficulty)
	}
	correct := 0
	for _, opt := range q.Options {
		if opt.Correct {
			correct++
		}
	}
	switch q.Type {
	case SingleChoice:
		if correct != 1 {
			return fmt.Errorf("%w: %s needs exactly one correct option, has %d", ErrInvalidQuestion, q.ID, correct)
		}
	case MultipleChoice:
		if correct < 1 {
			return fmt.Errorf("%w: %s needs at least one correct option", ErrInvalidQuestion, q.ID)
		}
	case TextInput:
		if len(q.Options) > 0 {
			return fmt.Errorf("%w: %s is text input but has options", ErrInvalidQuestion, q.ID)
		}
		if strings.TrimSpace(q.Reference) == "" {
			return fmt.Errorf("%w: %s is text input without a reference answer", ErrInvalidQuestion, q.ID)
		}
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidQuestion, q.ID, q.Type)
	}
	return nil
}

// ForTaker strips correctness and reference data.
func (q Question) ForTaker() TakerQuestion {
	out := TakerQuestion{ID: q.ID, Type: q.Type, Content: q.Content}
	for _, opt := range q.Options {
		out.Options = append(out.Options, TakerOption{ID: opt.ID, Text: opt.Text})
	}
	return out
}

func validType(t QuestionType) bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

func validDifficulty(d Difficulty) bool {
	for _, known := range Difficulties {
		if d == known {
			return true
		}
	}
	return false
}
