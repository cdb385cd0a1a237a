package daemon

import (
	"errors"
	"net/http"
	"testing"

	"memecat/internal/services"
	"memecat/internal/workflow"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.MissingItem("test", "op", "a.png"), http.StatusNotFound},
		{services.Wrap(services.ErrConsistencyViolation, "merge", "validate", "primary among duplicates", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrDecodeFailure, "fingerprint", "decode", "", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrValidation, "api", "query", "", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrConcurrentModification, "catalog", "cas", "", nil), http.StatusConflict},
		{workflow.ErrRunInProgress, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
