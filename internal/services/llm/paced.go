package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Paced limits how often the wrapped service is called.
type Paced struct {
	next    Service
	limiter *rate.Limiter
}

// NewPaced wraps next with a requests-per-minute limit. A non-positive limit
// returns next unchanged.
func NewPaced(next Service, perMinute int) Service {
	if next == nil || perMinute <= 0 {
		return next
	}
	return &Paced{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Describe waits for a token, then delegates.
func (p *Paced) Describe(ctx context.Context, media Media) (Description, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Description{}, err
	}
	return p.next.Describe(ctx, media)
}

// Close closes the wrapped service.
func (p *Paced) Close() error {
	return p.next.Close()
}
