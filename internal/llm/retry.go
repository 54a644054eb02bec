package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spendlens/spendlens/internal/observability"
)

// Retrying wraps a Client with exponential backoff on transient
// failures. Client errors other than 429 are not retried.
type Retrying struct {
	Inner           Client
	MaxRetries      int
	InitialInterval time.Duration
}

func NewRetrying(inner Client, maxRetries int) *Retrying {
	return &Retrying{Inner: inner, MaxRetries: maxRetries}
}

func (r *Retrying) Chat(ctx context.Context, req ChatRequest) (string, Usage, error) {
	var reply string
	var usage Usage
	err := r.retry(ctx, func() error {
		var innerErr error
		reply, usage, innerErr = r.Inner.Chat(ctx, req)
		return classify(innerErr)
	})
	observability.ObserveLLMCall(req.Purpose, usage.PromptTokens, usage.CompletionTokens, err)
	return reply, usage, err
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := r.retry(ctx, func() error {
		var innerErr error
		vector, innerErr = r.Inner.Embed(ctx, text)
		return classify(innerErr)
	})
	observability.ObserveLLMCall("embed", 0, 0, err)
	return vector, err
}

func (r *Retrying) retry(ctx context.Context, operation func() error) error {
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	policy := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	return backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx),
	)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.Transient() {
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}
