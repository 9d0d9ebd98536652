package textgen

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked retryable", markRetryable(errors.New("boom")), true},
		{"wrapped marked", fmt.Errorf("outer: %w", markRetryable(errors.New("boom"))), true},
		{"rate limit text", errors.New("googleapi: Error 429: rate limit exceeded"), true},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED: quota"), true},
		{"server error text", errors.New("ollama API error (status 503): overloaded"), true},
		{"bad request", errors.New("invalid argument: prompt too long"), false},
		{"auth failure", errors.New("API key not valid"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type deadlineProbe struct {
	sawDeadline bool
}

func (d *deadlineProbe) Name() string { return "probe" }

func (d *deadlineProbe) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	_, d.sawDeadline = ctx.Deadline()
	return "ok", nil
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	probe := &deadlineProbe{}
	p := WithTimeout(probe, 30*time.Second)

	out, err := p.Generate(context.Background(), "prompt", 64)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "ok" {
		t.Errorf("Generate = %q, want %q", out, "ok")
	}
	if !probe.sawDeadline {
		t.Error("expected inner provider to see a deadline")
	}
	if p.Name() != "probe" {
		t.Errorf("Name = %q, want %q", p.Name(), "probe")
	}
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	probe := &deadlineProbe{}
	if p := WithTimeout(probe, 0); p != Provider(probe) {
		t.Error("zero timeout should return the provider unwrapped")
	}
}

func TestRetryableStatus(t *testing.T) {
	for code, want := range map[int]bool{
		429: true, 500: true, 503: true, 599: true,
		400: false, 401: false, 404: false, 200: false,
	} {
		if got := retryableStatus(code); got != want {
			t.Errorf("retryableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}
