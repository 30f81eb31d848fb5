// Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("book", "atomic-habits"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "Invalid email"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Invalid wraps ErrValidation",
			err:       Invalid(CodeConsentRequired, "consent", "Consent required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream("webhook", cause),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Upstream also matches its cause",
			err:       Upstream("webhook", cause),
			target:    cause,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited(),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("submitting: %w", Upstream("notion", cause)),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("book", "x"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "ValidationFailed does NOT match ErrUpstream",
			err:       ValidationFailed("age", "Invalid age"),
			target:    ErrUpstream,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("book", "atomic-habits"),
			wantMessage: "book not found with id atomic-habits",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("firstName", "First name is required"),
			wantMessage: "First name is required",
		},
		{
			name:        "Upstream appends the cause",
			err:         Upstream("webhook", errors.New("status 500")),
			wantMessage: "webhook request failed: status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want string
	}{
		{ValidationFailed("age", "bad"), CodeInvalidPayload},
		{Invalid(CodeInvalidReferral, "referral", "bad"), CodeInvalidReferral},
		{NotFound("book", "x"), CodeNotFound},
		{Upstream("webhook", nil), CodeUpstream},
		{RateLimited(), CodeRateLimited},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.want {
			t.Errorf("Code = %q, want %q", tt.err.Code, tt.want)
		}
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "Invalid email")

	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
