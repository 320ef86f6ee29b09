package apierror

import "fmt"

// Error codes surfaced to API clients. Internal distinctions (user not
// found vs. password mismatch, circuit open vs. call timeout) are collapsed
// into this closed set before crossing the service boundary.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeRequestTimeout     = "REQUEST_TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func Validation(message string) *APIError {
	return New(CodeValidation, message, "", 400)
}

func Unauthorized(message string) *APIError {
	return New(CodeUnauthorized, message, "", 401)
}

func Conflict(message string) *APIError {
	return New(CodeConflict, message, "", 409)
}

func ServiceUnavailable(message string) *APIError {
	return New(CodeServiceUnavailable, message, "", 503)
}
