package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lerrors "github.com/lootly/lootly/internal/errors"
)

// ErrorCode classifies tool failures for clients.
type ErrorCode string

const (
	CodeValidation      ErrorCode = "VALIDATION_ERROR"
	CodeExternalAPI     ErrorCode = "EXTERNAL_API_ERROR"
	CodeConsentRequired ErrorCode = "CONSENT_REQUIRED"
	CodeRateLimit       ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeNotFound        ErrorCode = "RESOURCE_NOT_FOUND"
	CodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// SuccessResponse is the uniform envelope for successful tool results.
type SuccessResponse struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the uniform envelope for failed tool results.
type ErrorResponse struct {
	Status       string    `json:"status"`
	ErrorCode    ErrorCode `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	Details      any       `json:"details,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Success builds the success envelope as a JSON string.
func Success(data any, message string) string {
	return mustJSON(SuccessResponse{
		Status:    "success",
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// Error builds the error envelope as a JSON string.
func Error(code ErrorCode, message string) string {
	return ErrorWithDetails(code, message, nil)
}

// ErrorWithDetails builds the error envelope with structured details.
func ErrorWithDetails(code ErrorCode, message string, details any) string {
	return mustJSON(ErrorResponse{
		Status:       "error",
		ErrorCode:    code,
		ErrorMessage: message,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	})
}

// apiErrorDetails is the envelope detail block for upstream API errors. The
// full nested detail list is surfaced so no diagnostic information is lost.
type apiErrorDetails struct {
	StatusCode int                   `json:"status_code"`
	RequestID  string                `json:"request_id,omitempty"`
	Retryable  bool                  `json:"retryable"`
	RetryAfter int                   `json:"retry_after,omitempty"`
	Errors     []lerrors.ErrorDetail `json:"errors,omitempty"`
}

// FromError translates a core error into the uniform error envelope:
// consent-required points the user at the consent tool, configuration errors
// name the missing setting, and API errors carry status, detail list, and
// retry-after hint.
func FromError(err error) string {
	switch {
	case lerrors.IsConsentRequired(err):
		return Error(CodeConsentRequired,
			"User consent required. Run initiate_user_consent to authorize this application, then complete_user_consent with the callback URL.")
	case lerrors.IsConfiguration(err):
		return Error(CodeConfiguration, err.Error())
	}

	var apiErr *lerrors.APIError
	if errors.As(err, &apiErr) {
		code := CodeExternalAPI
		switch apiErr.StatusCode {
		case 404:
			code = CodeNotFound
		case 429:
			code = CodeRateLimit
		}
		return ErrorWithDetails(code,
			fmt.Sprintf("eBay API error (status %d): %s", apiErr.StatusCode, apiErr.Message),
			apiErrorDetails{
				StatusCode: apiErr.StatusCode,
				RequestID:  apiErr.RequestID,
				Retryable:  apiErr.IsRetryable(),
				RetryAfter: apiErr.RetryAfter(),
				Errors:     apiErr.Errors,
			})
	}

	return Error(CodeInternal, err.Error())
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// The envelope types are always marshalable; this guards programmer error.
		panic(fmt.Sprintf("encoding envelope: %v", err))
	}
	return string(b)
}
