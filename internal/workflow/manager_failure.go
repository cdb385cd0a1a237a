package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"memecat/internal/logging"
	"memecat/internal/services"
)

const maxFailureMessage = 500

// recordFailure persists a unit failure that happened before the item's
// processing state could be saved.
func (o *Orchestrator) recordFailure(ctx context.Context, logger *slog.Logger, filename string, unitErr error) {
	message := failureMessage(unitErr)
	unsupported := errors.Is(unitErr, services.ErrUnsupportedMedia)

	attrs := []logging.Attr{
		logging.String("error_message", message),
		logging.Bool("retryable", services.IsRetryable(unitErr)),
		logging.Alert("unit_failure"),
		logging.Error(unitErr),
		logging.String(logging.FieldErrorHint, failureHint(unitErr)),
		logging.String(logging.FieldImpact, "item is retried on the next sync run"),
	}
	logging.WarnWithContext(logger, "sync unit failed", "unit_failure", attrs...)

	if errors.Is(unitErr, services.ErrNotFound) && errors.Is(unitErr, services.ErrConsistencyViolation) {
		// The row is gone; there is nothing to annotate.
		return
	}
	if err := o.store.RecordFailure(context.WithoutCancel(ctx), filename, message, unsupported); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not record unit failure")
			return
		}
		logger.Error("failed to persist unit failure", logging.Error(err))
	}
}

func failureMessage(err error) string {
	if err == nil {
		return "sync unit failed without error detail"
	}
	message := strings.Join(strings.Fields(err.Error()), " ")
	if message == "" {
		message = "sync unit failed"
	}
	if len(message) > maxFailureMessage {
		message = message[:maxFailureMessage] + "..."
	}
	return message
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConcurrentModification):
		return "item was edited during the run; it is picked up again next run"
	case errors.Is(err, services.ErrTransientIO):
		return "check connectivity to the WebDAV server"
	case errors.Is(err, services.ErrNotFound):
		return "file disappeared from the remote between listing and fetch"
	case errors.Is(err, services.ErrConfiguration):
		return "check remote credentials in the config file"
	default:
		return "check logs for details"
	}
}
