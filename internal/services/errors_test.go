package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"memecat/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransientIO, "webdav", "fetch", "download failed", base)
	if !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"webdav", "fetch", "download failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestUnsupportedMediaIsDescriptionFailure(t *testing.T) {
	err := services.Wrap(services.ErrUnsupportedMedia, "gemini", "describe", "video/x-flv", nil)
	if !errors.Is(err, services.ErrDescriptionService) {
		t.Fatalf("expected unsupported media to match description failure: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransientIO, "webdav", "list", "", nil), true},
		{"conflict", services.ErrConcurrentModification, true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"decode", services.ErrDecodeFailure, false},
		{"consistency", services.MissingItem("merge", "validate", "a.jpg"), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.MissingItem("merge", "validate", "a.jpg"), http.StatusNotFound},
		{services.Wrap(services.ErrConsistencyViolation, "merge", "validate", "primary listed as duplicate", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrDecodeFailure, "fingerprint", "decode", "", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrValidation, "api", "bind", "", nil), http.StatusBadRequest},
		{services.ErrConcurrentModification, http.StatusConflict},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := services.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
