package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers map these to envelope status codes in one place;
// everything else just returns them.
var (
	ErrUnauthenticated  = errors.New("missing or invalid credential")
	ErrForbidden        = errors.New("forbidden")
	ErrPlanRequired     = errors.New("account plan does not allow this operation")
	ErrIdentityNotFound = errors.New("auth user not found")
)

// ConfigError means a required backend location or credential could not be
// resolved. Load fails fast on these, so seeing one at request time is a bug.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Missing)
}

// UpstreamError carries a non-2xx backend response through to the caller.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.Status, e.Body)
}

// DomainError is a logical failure the backend reported via its own ok/error
// fields. Surfaced as 400 with the backend's message.
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return "operation failed"
	}
	return e.Message
}
