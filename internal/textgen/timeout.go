package textgen

import (
	"context"
	"time"
)

// WithTimeout bounds every Generate call with its own deadline so a
// hung provider cannot stall a whole cycle.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{next: p, d: d}
}

type timeoutProvider struct {
	next Provider
	d    time.Duration
}

func (t *timeoutProvider) Name() string { return t.next.Name() }

func (t *timeoutProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Generate(ctx, prompt, maxTokens)
}
