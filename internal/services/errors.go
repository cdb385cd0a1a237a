package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrTransientIO            = errors.New("transient io failure")
	ErrDecodeFailure          = errors.New("decode failure")
	ErrDescriptionService     = errors.New("description service failure")
	ErrUnsupportedMedia       = fmt.Errorf("%w: unsupported media", ErrDescriptionService)
	ErrConsistencyViolation   = errors.New("consistency violation")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrValidation             = errors.New("validation error")
	ErrConfiguration          = errors.New("configuration error")
	ErrNotFound               = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransientIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the failure is expected to clear up on a later
// attempt without operator intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTransientIO), errors.Is(err, ErrConcurrentModification):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// HTTPStatus maps an engine error onto the status code the transport layer
// should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConsistencyViolation), errors.Is(err, ErrDecodeFailure), errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, ErrTransientIO), errors.Is(err, ErrDescriptionService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MissingItem builds a consistency violation for an unknown filename. It also
// matches ErrNotFound so transports can answer 404.
func MissingItem(component, operation, filename string) error {
	return fmt.Errorf("%w: %s: %s: item %q: %w", ErrConsistencyViolation, component, operation, filename, ErrNotFound)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
