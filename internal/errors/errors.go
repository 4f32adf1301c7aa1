// Package errors provides structured error types for eBay API calls.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	// ErrConsentRequired signals that the caller must run the user
	// authorization flow before the operation can succeed. It is a
	// distinguished signal, not a generic failure.
	ErrConsentRequired = errors.New("user consent required")

	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("operation timed out")
	ErrRateLimit     = errors.New("rate limit exceeded")
	ErrNotFound      = errors.New("resource not found")
)

// NewConfigError reports a missing or invalid configuration setting by name.
func NewConfigError(setting string) error {
	return fmt.Errorf("%w: %s is not set", ErrConfiguration, setting)
}

// ErrorDetail is one entry from an eBay error response.
type ErrorDetail struct {
	ErrorID      int              `json:"errorId,omitempty"`
	Domain       string           `json:"domain,omitempty"`
	SubDomain    string           `json:"subDomain,omitempty"`
	Category     string           `json:"category,omitempty"`
	Message      string           `json:"message"`
	LongMessage  string           `json:"longMessage,omitempty"`
	InputRefIDs  []string         `json:"inputRefIds,omitempty"`
	OutputRefIDs []string         `json:"outputRefIds,omitempty"`
	Parameters   []ErrorParameter `json:"parameters,omitempty"`
}

// ErrorParameter is a structured name/value pair attached to an error entry.
type ErrorParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// APIError is an HTTP error response from the eBay REST surface.
type APIError struct {
	StatusCode int
	RequestID  string
	Errors     []ErrorDetail
	Message    string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("ebay API error (status %d, request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("ebay API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the error is likely transient. Server errors,
// rate limits, and a fixed set of status codes qualify; the caller decides
// whether to act on it.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode >= 500 {
		return true
	}
	switch e.StatusCode {
	case 408, 409, 429, 502, 503, 504:
		return true
	}
	return false
}

// RetryAfter returns the retry-after hint in seconds from the error
// parameters, or 0 if none is present.
func (e *APIError) RetryAfter() int {
	for _, d := range e.Errors {
		for _, p := range d.Parameters {
			if p.Name == "retry_after" {
				if secs, err := strconv.Atoi(p.Value); err == nil {
					return secs
				}
				return 60
			}
		}
	}
	return 0
}

// errorResponse mirrors eBay's documented error body.
type errorResponse struct {
	Errors  []ErrorDetail `json:"errors"`
	Message string        `json:"message"`
}

// NewAPIError builds an APIError from a non-2xx response body. The body may
// be the standard {errors:[...]} shape, the simpler {message} shape, or
// arbitrary text.
func NewAPIError(statusCode int, body []byte, requestID string) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		RequestID:  requestID,
	}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case len(parsed.Errors) > 0:
			apiErr.Errors = parsed.Errors
			apiErr.Message = parsed.Errors[0].Message
		case parsed.Message != "":
			apiErr.Errors = []ErrorDetail{{Message: parsed.Message}}
			apiErr.Message = parsed.Message
		}
	}

	if apiErr.Message == "" {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = fmt.Sprintf("HTTP %d error", statusCode)
		}
		apiErr.Message = text
	}
	return apiErr
}

// IsRetryable reports whether err is worth retrying: an APIError that
// classifies as retryable, or one of the transient sentinels.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit)
}

// IsConsentRequired reports whether err carries the consent-required signal.
func IsConsentRequired(err error) bool {
	return errors.Is(err, ErrConsentRequired)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
