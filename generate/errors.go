package generate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration means no backend credential is configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrBackend covers transport and service failures.
	ErrBackend = errors.New("backend error")
	// ErrMalformedResponse means the payload failed required-field validation.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptyResult means the backend succeeded but returned nothing usable.
	ErrEmptyResult = errors.New("empty result")
)

// Wrap tags err with marker so callers can classify it with errors.Is.
// A nil marker is treated as ErrBackend.
func Wrap(marker error, operation, message string, err error) error {
	if marker == nil {
		marker = ErrBackend
	}
	detail := buildDetail(operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "generation failure"
	}
	return strings.Join(parts, ": ")
}

// HTTPStatusError is returned (wrapped in ErrBackend) for non-2xx replies
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}
