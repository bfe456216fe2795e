package domain

import "errors"

var (
	// ErrQuestionNotFound indicates a referenced question ID is not in the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrTemplateNotFound is returned when a template ID is unknown.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrDistributionNotFound is returned when a distribution ID is unknown or was deleted.
	ErrDistributionNotFound = errors.New("distribution not found")
	// ErrOptionNotFound indicates an answer names an option the question does not have.
	ErrOptionNotFound = errors.New("option not found")
	// ErrClassNotFound is returned when a target class does not exist.
	ErrClassNotFound = errors.New("class not found")

	// ErrInvalidWindow means the close timestamp is not strictly after the open timestamp.
	ErrInvalidWindow = errors.New("close time must be after open time")
	// ErrNoClasses means a distribution was requested without target classes.
	ErrNoClasses = errors.New("at least one class is required")
	// ErrInvalidDuration means a duration is not a positive number of minutes.
	ErrInvalidDuration = errors.New("duration must be positive")
	// ErrInvalidAccessCode means an access code is not 6 alphanumeric characters.
	ErrInvalidAccessCode = errors.New("access code must be 6 alphanumeric characters")
	// ErrInvalidStatus means a status override is not a known status.
	ErrInvalidStatus = errors.New("invalid distribution status")
	// ErrInvalidMatrix means a selection matrix names unknown cells or negative counts.
	ErrInvalidMatrix = errors.New("invalid selection matrix")
	// ErrInvalidQuestion means a question violates its type invariants.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidTemplate means template parameters are out of range.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrEmptyAnswer is returned when committing a question that has no answer yet.
	ErrEmptyAnswer = errors.New("choose an answer first")
	// ErrInvalidAnswer means the answer shape does not fit the question type.
	ErrInvalidAnswer = errors.New("answer does not fit the question type")
	// ErrAccessDenied is returned when the access code does not match.
	ErrAccessDenied = errors.New("access code does not match")
	// ErrNotOpen is returned when a distribution has not opened yet.
	ErrNotOpen = errors.New("distribution is not open yet")
	// ErrClosed is returned when a distribution window has finished.
	ErrClosed = errors.New("distribution is closed")
	// ErrAlreadySubmitted is returned for a second final submission of the same attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
)
