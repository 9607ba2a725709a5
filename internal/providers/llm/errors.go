package llm

import (
	"context"
	"errors"
	"strings"
)

// ProviderError is an error from an LLM provider.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

const (
	ErrCodeAPIKey          = "invalid_api_key"
	ErrCodeRateLimit       = "rate_limit_exceeded"
	ErrCodeServiceDown     = "service_unavailable"
	ErrCodeInvalidResponse = "invalid_response"
	ErrCodeTimeout         = "timeout"
)

// IsFatal reports whether err is an authorization failure that no retry can fix.
func IsFatal(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ErrCodeAPIKey
}

// CodeOf returns the provider error code of err, or "".
func CodeOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func classify(provider, message string, err error) *ProviderError {
	code := ErrCodeServiceDown
	switch {
	case isAuthError(err):
		code = ErrCodeAPIKey
	case isRateLimitError(err):
		code = ErrCodeRateLimit
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(errText(err)), "deadline exceeded"):
		code = ErrCodeTimeout
	}
	return &ProviderError{Provider: provider, Code: code, Message: message, Err: err}
}

func invalidResponse(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: ErrCodeInvalidResponse, Message: message, Err: err}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := errText(err)
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "Error 401") ||
		strings.Contains(msg, "Error 403") ||
		strings.Contains(msg, "UNAUTHENTICATED") ||
		strings.Contains(msg, "PERMISSION_DENIED") ||
		strings.Contains(msg, "API_KEY_INVALID") ||
		strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "api key expired")
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := errText(err)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}
