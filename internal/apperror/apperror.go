package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("Validation Error")
	ErrUpstream    = errors.New("upstream failure")
	ErrRateLimited = errors.New("rate limited")
)

// Machine-readable codes returned in the "error" field of API responses.
const (
	CodeInvalidLocation      = "invalid_location"
	CodeInvalidPayload       = "invalid_payload"
	CodeInvalidReferral      = "invalid_referral"
	CodeInvalidReferralOther = "invalid_referral_other"
	CodeConsentRequired      = "consent_required"
	CodeNotFound             = "not_found"
	CodeUpstream             = "upstream_error"
	CodeRateLimited          = "rate_limited"
	CodeServer               = "server_error"
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Code    string // API error code
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// Invalid returns a validation error with an explicit API code, e.g.
// Invalid(CodeInvalidReferral, "referral", "Invalid referral").
func Invalid(code, field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Code:    code,
		Message: message,
		Field:   field,
	}
}

// ValidationFailed is the general invalid-payload error.
func ValidationFailed(field, message string) *AppError {
	return Invalid(CodeInvalidPayload, field, message)
}

// Upstream wraps a failure of an external processor (webhook or workspace
// database). HTTP handlers map this to 502 Bad Gateway and only ever show
// the generic message.
func Upstream(service string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Code:    CodeUpstream,
		Message: fmt.Sprintf("%s request failed", service),
		Cause:   cause,
	}
}

// RateLimited returns an AppError for callers that exceeded their quota.
// HTTP handlers map this to 429 Too Many Requests.
func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Code:    CodeRateLimited,
		Message: "too many submissions, please try again later",
	}
}
