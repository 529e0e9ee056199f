// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown unknown failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit rate limit reached.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded quota exceeded or key denied.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout connection timeout.
	ErrorTypeTimeout
	// ErrorTypeNotFound address not found.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest malformed request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError network failure.
	ErrorTypeNetworkError
	// ErrorTypeCanceled the requesting view went away.
	ErrorTypeCanceled
)

// GeocodeError describes an address lookup failure.
type GeocodeError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *GeocodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodeError) Unwrap() error {
	return e.Err
}

// IsGeocodeError reports whether err came from a geocoder.
func IsGeocodeError(err error) bool {
	var geoErr *GeocodeError

	return errors.As(err, &geoErr)
}

// IsRateLimitError reports whether err is a rate limit failure.
func IsRateLimitError(err error) bool {
	var geoErr *GeocodeError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err is a quota failure.
func IsQuotaExceededError(err error) bool {
	var geoErr *GeocodeError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeQuotaExceeded
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	var geoErr *GeocodeError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeTimeout
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsCanceled reports whether the lookup was abandoned by its caller.
func IsCanceled(err error) bool {
	var geoErr *GeocodeError
	if errors.As(err, &geoErr) && geoErr.Type == ErrorTypeCanceled {
		return true
	}

	return errors.Is(err, context.Canceled)
}

// ClassifyHTTPError maps an HTTP status code to a geocoding error.
func ClassifyHTTPError(statusCode int) *GeocodeError {
	switch statusCode {
	case http.StatusTooManyRequests:
		return &GeocodeError{Type: ErrorTypeRateLimit, Message: "rate limit reached"}
	case http.StatusForbidden:
		return &GeocodeError{Type: ErrorTypeQuotaExceeded, Message: "quota exceeded or access denied"}
	case http.StatusBadRequest:
		return &GeocodeError{Type: ErrorTypeInvalidRequest, Message: "invalid request"}
	case http.StatusNotFound:
		return &GeocodeError{Type: ErrorTypeNotFound, Message: "address not found"}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &GeocodeError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &GeocodeError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("HTTP error %d", statusCode)}
	}
}

// classifyStatus maps a Google Geocoding API status to a geocoding error.
func classifyStatus(status string) *GeocodeError {
	switch status {
	case "ZERO_RESULTS":
		return &GeocodeError{Type: ErrorTypeNotFound, Message: "address not found"}
	case "OVER_QUERY_LIMIT":
		return &GeocodeError{Type: ErrorTypeQuotaExceeded, Message: "google maps status: OVER_QUERY_LIMIT"}
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return &GeocodeError{Type: ErrorTypeQuotaExceeded, Message: "google maps status: " + status}
	case "INVALID_REQUEST":
		return &GeocodeError{Type: ErrorTypeInvalidRequest, Message: "invalid request"}
	default:
		return &GeocodeError{Type: ErrorTypeUnknown, Message: "google maps status: " + status}
	}
}

// classifyTransport wraps a client.Do failure.
func classifyTransport(err error) *GeocodeError {
	switch {
	case errors.Is(err, context.Canceled):
		return &GeocodeError{Type: ErrorTypeCanceled, Message: "geocoding canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded) || IsTimeoutError(err):
		return &GeocodeError{Type: ErrorTypeTimeout, Message: "geocoding timed out", Err: err}
	default:
		return &GeocodeError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
	}
}
