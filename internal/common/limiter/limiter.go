// Package limiter bounds concurrent work with a fixed pool of tokens.
package limiter

import (
	"context"
	"time"

	appErr "coderush/pkg/errors"
)

// TokenLimiter is a simple counting limiter for in-flight work.
type TokenLimiter struct {
	tokens chan struct{}
}

// NewTokenLimiter creates a limiter with a fixed capacity.
func NewTokenLimiter(size int) *TokenLimiter {
	if size <= 0 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &TokenLimiter{tokens: tokens}
}

// Acquire blocks until a token is available or ctx is canceled.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

// AcquireWithin waits at most wait for a token. An expired wait is reported
// as JudgeQueueFull; a non-positive wait blocks until ctx is done.
func (l *TokenLimiter) AcquireWithin(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		if err := l.Acquire(ctx); err != nil {
			return appErr.Canceled(err)
		}
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return appErr.Canceled(ctx.Err())
	case <-l.tokens:
		return nil
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("judge queue is full")
	}
}

// Release returns a token to the limiter.
func (l *TokenLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}

// Available reports how many tokens are free.
func (l *TokenLimiter) Available() int {
	return len(l.tokens)
}

// Capacity reports the total number of tokens.
func (l *TokenLimiter) Capacity() int {
	return cap(l.tokens)
}
