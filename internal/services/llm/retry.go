package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"

	"memecat/internal/services"
)

const (
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
)

// Option customizes a provider.
type Option func(*retryPolicy)

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(p *retryPolicy) {
		p.maxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(p *retryPolicy) {
		p.baseDelay = baseDelay
		p.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(p *retryPolicy) {
		p.sleeper = sleeper
	}
}

type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
}

func newRetryPolicy(opts []Option) retryPolicy {
	p := retryPolicy{
		maxAttempts: defaultRetryAttempts,
		baseDelay:   defaultRetryBaseDelay,
		maxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// do runs fn until it succeeds, returns a permanent error, or the attempts
// run out.
func (p retryPolicy) do(ctx context.Context, op string, fn func() error) error {
	attempts := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		delay, retry := p.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p retryPolicy) attempts() int {
	if p.maxAttempts <= 0 {
		return 1
	}
	return p.maxAttempts
}

func (p retryPolicy) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, errEmptyContent) {
		return p.backoffDelay(attempt), true
	}
	if code := statusCode(err); code != 0 {
		switch {
		case code == http.StatusRequestTimeout,
			code == http.StatusTooManyRequests,
			code >= http.StatusInternalServerError:
			return p.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return p.backoffDelay(attempt), true
	}
	return 0, false
}

func (p retryPolicy) backoffDelay(attempt int) time.Duration {
	base := p.baseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := p.maxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if attempt <= 0 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p retryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var errEmptyContent = errors.New("empty content")

// statusCode extracts the HTTP status from provider SDK errors.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

var unsupportedMarkers = []string{
	"unsupported mime type",
	"mime type not supported",
	"unsupported image",
	"unsupported file",
	"invalid image",
	"unsupported media",
}

// classifyProviderError tags a provider failure for the sync workflow.
func classifyProviderError(provider, filename string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := statusCode(err)
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return services.Wrap(services.ErrConfiguration, provider, "describe", "provider rejected credentials", err)
	}
	if code == 0 || code == http.StatusBadRequest || code == http.StatusUnsupportedMediaType {
		message := strings.ToLower(err.Error())
		for _, marker := range unsupportedMarkers {
			if strings.Contains(message, marker) {
				return services.Wrap(services.ErrUnsupportedMedia, provider, "describe", filename, err)
			}
		}
	}
	if code == http.StatusUnsupportedMediaType {
		return services.Wrap(services.ErrUnsupportedMedia, provider, "describe", filename, err)
	}
	return services.Wrap(services.ErrDescriptionService, provider, "describe", filename, err)
}
