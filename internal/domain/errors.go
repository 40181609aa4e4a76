package domain

import (
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrValidation     = "VALIDATION_ERROR"
	ErrGeneration     = "GENERATION_ERROR"
	ErrInitialization = "INITIALIZATION_ERROR"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ValidationErrors collects every field failure of one input.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// InitializationError is fatal: the named component could not be brought up and
// the process must not serve requests.
type InitializationError struct {
	Component string
	Cause     error
}

// NewInitializationError creates a new InitializationError
func NewInitializationError(component string, cause error) *InitializationError {
	return &InitializationError{Component: component, Cause: cause}
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize %s: %v", e.Component, e.Cause)
}

func (e *InitializationError) Unwrap() error {
	return e.Cause
}

// GenerationError is a recoverable failure of a single generation call.
type GenerationError struct {
	Model string
	Cause error
}

// NewGenerationError creates a new GenerationError
func NewGenerationError(model string, cause error) *GenerationError {
	return &GenerationError{Model: model, Cause: cause}
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with model %q failed: %v", e.Model, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}
