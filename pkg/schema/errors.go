package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeEmptyInput        = "EMPTY_INPUT"
	ErrCodeSyntax            = "SYNTAX_ERROR"
	ErrCodeRender            = "RENDER_FAILED"
	ErrCodeInit              = "INIT_FAILED"
	ErrCodeUnsupported       = "UNSUPPORTED_DIAGRAM"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
)

// PipelineError is the structured error type for all diagram pipeline operations.
type PipelineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Token   RenderToken    `json:"render_token,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Token, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PipelineError.
func NewError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}

// NewErrorf creates a new PipelineError with a formatted message.
func NewErrorf(code, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithToken attaches the render token the error belongs to.
func (e *PipelineError) WithToken(token RenderToken) *PipelineError {
	e.Token = token
	return e
}

// WithCause attaches an underlying cause.
func (e *PipelineError) WithCause(err error) *PipelineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PipelineError) WithDetails(details map[string]any) *PipelineError {
	e.Details = details
	return e
}

// HasCode reports whether err is a PipelineError carrying the given code.
func HasCode(err error, code string) bool {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == code
}
