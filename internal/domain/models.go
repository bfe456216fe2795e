package domain

import "time"

// QuestionType enumerates how a question is answered.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TextInput      QuestionType = "text_input"
)

// QuestionTypes lists every type in selection order.
var QuestionTypes = []QuestionType{SingleChoice, MultipleChoice, TextInput}

// Difficulty grades a question.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Difficulties lists every difficulty in selection order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// Option is a possible answer for a choice question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is an item of a course question bank.
type Question struct {
	ID         string       `json:"id"`
	CourseID   string       `json:"courseId"`
	Topic      string       `json:"topic"`
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
	Content    string       `json:"content"`
	Options    []Option     `json:"options,omitempty"`
	// Reference is the canonical answer of a text input question.
	Reference string `json:"reference,omitempty"`
}

// Template is an ordered list of question references plus exam parameters.
type Template struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"courseId"`
	Title           string    `json:"title"`
	QuestionIDs     []string  `json:"questionIds"`
	DurationMinutes int       `json:"durationMinutes"`
	PassScore       float64   `json:"passScore"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Distribution is a template scheduled for one class.
// Title, duration and the question list are copied from the template when the
// row is created; later template edits do not reach it.
type Distribution struct {
	ID              string              `json:"id"`
	TemplateID      string              `json:"templateId"`
	ClassID         string              `json:"classId"`
	Title           string              `json:"title"`
	QuestionIDs     []string            `json:"questionIds"`
	DurationMinutes int                 `json:"durationMinutes"`
	OpenAt          time.Time           `json:"openAt"`
	CloseAt         time.Time           `json:"closeAt"`
	AccessCode      string              `json:"accessCode,omitempty"`
	StatusOverride  *DistributionStatus `json:"statusOverride,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// DistributionView is a distribution together with its effective status.
type DistributionView struct {
	Distribution
	Status DistributionStatus `json:"status"`
}

// AnswerValue is a taker's answer: option ids for choice questions, text otherwise.
type AnswerValue struct {
	OptionIDs []string `json:"optionIds,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// AnswerEntry pairs a question with its answer.
type AnswerEntry struct {
	QuestionID string      `json:"questionId"`
	Value      AnswerValue `json:"value"`
}

// SavedAnswer is an answer acknowledged by the server.
type SavedAnswer struct {
	QuestionID string      `json:"questionId"`
	Value      AnswerValue `json:"value"`
	SavedAt    time.Time   `json:"savedAt"`
}

// TakerOption is an option as shown to a test-taker.
type TakerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TakerQuestion is a question stripped of correctness data.
type TakerQuestion struct {
	ID      string        `json:"id"`
	Type    QuestionType  `json:"type"`
	Content string        `json:"content"`
	Options []TakerOption `json:"options,omitempty"`
}

// AttemptDetail is everything a taker needs to run or resume an attempt.
type AttemptDetail struct {
	DistributionID  string          `json:"distributionId"`
	Title           string          `json:"title"`
	DurationMinutes int             `json:"durationMinutes"`
	ClassName       string          `json:"className"`
	Questions       []TakerQuestion `json:"questions"`
	SavedAnswers    []SavedAnswer   `json:"savedAnswers"`
}

// SubmitResult is the outcome of a graded submission.
type SubmitResult struct {
	Score          float64 `json:"score"`
	CorrectCount   int     `json:"correctCount"`
	TotalQuestions int     `json:"totalQuestions"`
	Passed         bool    `json:"passed"`
}

// Submission is the stored final state of an attempt.
type Submission struct {
	DistributionID string        `json:"distributionId"`
	TakerID        string        `json:"takerId"`
	Answers        []AnswerEntry `json:"answers"`
	Result         SubmitResult  `json:"result"`
	SubmittedAt    time.Time     `json:"submittedAt"`
}

// Class is the minimal view of a class the engine needs.
type Class struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
