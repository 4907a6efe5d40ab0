package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrFatal        = errors.New("fatal error")
	ErrNoWork       = errors.New("no work found")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// FatalError marks err as process-ending. The returned error matches both
// ErrFatal and err under errors.Is.
func FatalError(code string, err error) error {
	if err == nil {
		return nil
	}
	return NewAppError(code, "aborting run", fatalError{err: err})
}

type fatalError struct{ err error }

func (e fatalError) Error() string   { return e.err.Error() }
func (e fatalError) Unwrap() []error { return []error{ErrFatal, e.err} }

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ServiceError is a failed call to an external service (generation API,
// speech-to-text, subprocess). Code drives retry classification.
type ServiceError struct {
	Service    string
	StatusCode int
	Code       codes.Code
	Body       string
	Cause      error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Service, e.Code)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s status %d", e.Service, e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.Code classify a ServiceError anywhere in a wrap chain.
func (e *ServiceError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Error())
}

// NewHTTPError maps an HTTP status from an external API onto a ServiceError.
func NewHTTPError(service string, statusCode int, body string) *ServiceError {
	return &ServiceError{
		Service:    service,
		StatusCode: statusCode,
		Code:       CodeFromHTTP(statusCode),
		Body:       truncate(body, 2048),
	}
}

// NewTransportError wraps a network-level failure; it is always retryable.
func NewTransportError(service string, cause error) *ServiceError {
	return &ServiceError{Service: service, Code: codes.Unavailable, Cause: cause}
}

// CodeFromHTTP converts an HTTP status into the canonical gRPC code.
func CodeFromHTTP(statusCode int) codes.Code {
	switch {
	case statusCode == http.StatusUnauthorized:
		return codes.Unauthenticated
	case statusCode == http.StatusForbidden:
		return codes.PermissionDenied
	case statusCode == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case statusCode == http.StatusNotFound:
		return codes.NotFound
	case statusCode == http.StatusBadRequest:
		return codes.InvalidArgument
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case statusCode >= 500:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
