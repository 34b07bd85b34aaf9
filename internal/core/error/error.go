package errx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// UpstreamErrorMessage describes failures of external HTTP services.
	UpstreamErrorMessage = "upstream service request failed"
)

// Kind groups failures into the categories surfaced to chat callers.
type Kind int

const (
	KindGeneric Kind = iota
	KindTimeout
	KindConnectivity
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectivity:
		return "connectivity"
	case KindPersistence:
		return "persistence"
	default:
		return "generic"
	}
}

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WithKind returns a copy of e tagged with kind.
func (e *AppError) WithKind(kind Kind) *AppError {
	cp := *e
	cp.Kind = kind
	return &cp
}

// WrapUpstream tags a failed call to an external service as a connectivity problem.
func WrapUpstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     fmt.Errorf("%s: %w", service, err),
		Status:  http.StatusBadGateway,
		Message: UpstreamErrorMessage,
		Kind:    KindConnectivity,
	}
}

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status == http.StatusNotFound
	}
	return false
}

// KindOf classifies err. Deadlines win over any tagged kind so that a
// timed-out database call is still reported as a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindGeneric {
		return appErr.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnectivity
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnectivity
	}
	return KindGeneric
}

// UserMessage returns the caller-safe text for a failure kind.
func UserMessage(kind Kind) string {
	switch kind {
	case KindTimeout:
		return "The request took too long. Please try again with a simpler question."
	case KindConnectivity:
		return "Unable to connect to external services. Please check your internet connection and try again."
	case KindPersistence:
		return "Database error. Your message was processed but may not be saved."
	default:
		return "An unexpected error occurred. Please try again or contact support if the issue persists."
	}
}
