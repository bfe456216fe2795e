package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/session"
)

// APIError is the error body shared by REST replies and websocket error frames.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrQuestionNotFound, http.StatusNotFound, "question_not_found"},
	{domain.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{domain.ErrDistributionNotFound, http.StatusNotFound, "distribution_not_found"},
	{domain.ErrClassNotFound, http.StatusNotFound, "class_not_found"},
	{domain.ErrOptionNotFound, http.StatusBadRequest, "option_not_found"},
	{domain.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{domain.ErrNoClasses, http.StatusBadRequest, "no_classes"},
	{domain.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{domain.ErrInvalidAccessCode, http.StatusBadRequest, "invalid_access_code"},
	{domain.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{domain.ErrInvalidMatrix, http.StatusBadRequest, "invalid_matrix"},
	{domain.ErrInvalidQuestion, http.StatusBadRequest, "invalid_question"},
	{domain.ErrInvalidTemplate, http.StatusBadRequest, "invalid_template"},
	{domain.ErrEmptyAnswer, http.StatusBadRequest, "empty_answer"},
	{domain.ErrInvalidAnswer, http.StatusBadRequest, "invalid_answer"},
	{domain.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{domain.ErrNotOpen, http.StatusConflict, "not_open"},
	{domain.ErrClosed, http.StatusConflict, "closed"},
	{domain.ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
	{session.ErrAttemptClosed, http.StatusConflict, "attempt_closed"},
}

const codeInternal = "internal"

// ErrorCode maps an error to its HTTP status and wire code.
func ErrorCode(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

// ErrorForCode returns the sentinel behind a wire code, or nil for unknown codes.
func ErrorForCode(code string) error {
	for _, m := range errorMappings {
		if m.code == code {
			return m.err
		}
	}
	return nil
}

// RemoteError carries an error reported by the server. It unwraps to the
// matching sentinel so callers can keep using errors.Is.
type RemoteError struct {
	APIError
	sentinel error
}

func NewRemoteError(e APIError) *RemoteError {
	return &RemoteError{APIError: e, sentinel: ErrorForCode(e.Code)}
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error { return e.sentinel }

func toAPIError(err error) (int, APIError) {
	status, code := ErrorCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return status, APIError{Message: msg, Code: code}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status, apiErr := toAPIError(err)
	respondJSON(w, status, ErrorEnvelope{Error: apiErr})
}
