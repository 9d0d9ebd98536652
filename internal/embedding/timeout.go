package embedding

import (
	"context"
	"time"
)

// WithTimeout bounds every Embed call with its own deadline.
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

func (t *timeoutProvider) Dimensions() int { return t.next.Dimensions() }

func (t *timeoutProvider) Embed(ctx context.Context, texts []string) ([][]float64, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Embed(ctx, texts)
}
