package limiter

import (
	"context"
	"testing"
	"time"

	appErr "coderush/pkg/errors"
)

func TestTokenLimiterCapacity(t *testing.T) {
	l := NewTokenLimiter(2)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if l.Available() != 0 || l.Capacity() != 2 {
		t.Fatalf("unexpected accounting: available=%d capacity=%d", l.Available(), l.Capacity())
	}
	l.Release()
	l.Release()
	l.Release()
	if l.Available() != 2 {
		t.Fatalf("release must not exceed capacity, got %d", l.Available())
	}
}

func TestAcquireWithinTimesOutAsQueueFull(t *testing.T) {
	l := NewTokenLimiter(1)
	if err := l.AcquireWithin(context.Background(), time.Second); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	err := l.AcquireWithin(context.Background(), 20*time.Millisecond)
	if !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
}

func TestAcquireWithinHonoursCancellation(t *testing.T) {
	l := NewTokenLimiter(1)
	_ = l.Acquire(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.AcquireWithin(ctx, time.Second); !appErr.Is(err, appErr.RequestCanceled) {
		t.Fatalf("expected request canceled, got %v", err)
	}
	if err := l.AcquireWithin(ctx, 0); !appErr.Is(err, appErr.RequestCanceled) {
		t.Fatalf("expected request canceled, got %v", err)
	}
}

func TestNewTokenLimiterMinimumSize(t *testing.T) {
	if got := NewTokenLimiter(0).Capacity(); got != 1 {
		t.Fatalf("expected capacity 1, got %d", got)
	}
}
