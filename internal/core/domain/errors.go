package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType represents the category of a gate denial.
type ErrorType string

const (
	// ErrorTypeHostCheck indicates a heuristic host context check failed.
	ErrorTypeHostCheck ErrorType = "host_check"

	// ErrorTypeConfiguration indicates a required host capability is missing.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeRateLimit indicates the request rate limit was exceeded.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeTenantMismatch indicates the active tenant is not authorized.
	ErrorTypeTenantMismatch ErrorType = "tenant_mismatch"

	// ErrorTypeTenantUnverified indicates the tenant could not be verified and
	// policy requires denial.
	ErrorTypeTenantUnverified ErrorType = "tenant_unverified"
)

// Sentinel kinds for errors.Is.
var (
	ErrHostCheck        = errors.New("host context check failed")
	ErrConfiguration    = errors.New("host integration misconfigured")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrTenantMismatch   = errors.New("unauthorized tenant")
	ErrTenantUnverified = errors.New("tenant not verified")
)

// HostCheckError is a failed heuristic check (embedding, referrer, client signature).
type HostCheckError struct {
	Check  string
	Reason string
}

func (e *HostCheckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Check, e.Reason)
}

func (e *HostCheckError) Is(target error) bool { return target == ErrHostCheck }

// ConfigurationError reports host capabilities the gate requires but the host
// integration does not expose. It is fatal and never retried.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("configuration error: %s: load the sidebar inside the host application with its integration API enabled", e.Reason)
	}
	return fmt.Sprintf("configuration error: host integration does not provide %s: upgrade the host bridge or enable these operations in the integration settings",
		strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// RateLimitError is a transient denial. Callers may retry after RetryAt.
type RateLimitError struct {
	Reason  string
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return e.Reason
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter returns how long the caller must wait before retrying.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	if d := e.RetryAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// TenantMismatchError is a hard, non-retryable tenant denial.
type TenantMismatchError struct {
	Reason string
}

func (e *TenantMismatchError) Error() string {
	return e.Reason
}

func (e *TenantMismatchError) Is(target error) bool { return target == ErrTenantMismatch }

// TenantUnverifiedError is returned when verification could not complete and the
// configured policy denies unverified tenants.
type TenantUnverifiedError struct {
	Reason string
	// Err is the underlying cause, such as a cancelled context.
	Err error
}

func (e *TenantUnverifiedError) Error() string {
	return e.Reason
}

func (e *TenantUnverifiedError) Is(target error) bool { return target == ErrTenantUnverified }

func (e *TenantUnverifiedError) Unwrap() error { return e.Err }

// AccessDenied aggregates every failing check of one gate decision.
type AccessDenied struct {
	Failures []CheckResult
	Causes   []error
}

// NewAccessDenied builds a denial from failing checks and their typed causes.
func NewAccessDenied(failures []CheckResult, causes []error) *AccessDenied {
	return &AccessDenied{Failures: failures, Causes: causes}
}

func (e *AccessDenied) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Reason))
	}
	return "access denied: " + strings.Join(parts, "; ")
}

// Unwrap exposes the typed causes to errors.Is and errors.As.
func (e *AccessDenied) Unwrap() []error {
	return e.Causes
}

// Type returns the most significant category among the causes.
func (e *AccessDenied) Type() ErrorType {
	switch {
	case errors.Is(e, ErrTenantMismatch):
		return ErrorTypeTenantMismatch
	case errors.Is(e, ErrConfiguration):
		return ErrorTypeConfiguration
	case errors.Is(e, ErrTenantUnverified):
		return ErrorTypeTenantUnverified
	case errors.Is(e, ErrRateLimited):
		return ErrorTypeRateLimit
	default:
		return ErrorTypeHostCheck
	}
}

// HTTPStatusCode returns the appropriate HTTP status code for this denial.
func (e *AccessDenied) HTTPStatusCode() int {
	switch e.Type() {
	case ErrorTypeConfiguration:
		return http.StatusFailedDependency
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}
