package automation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("automation: not found")
	ErrUnsupported = errors.New("automation: operation not supported")
)

// APIError is returned for non-2xx responses. Response still carries the
// decoded body so callers can surface the backend's message.
type APIError struct {
	Retailer  string
	Operation Operation
	Status    int
	Response  Response
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: API error (status %d): %s", e.Retailer, e.Operation, e.Status, truncate(e.Response.String(), 200))
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
