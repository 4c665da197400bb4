// Package simple includes tests for the permissive limiter implementation.
package simple

import (
	"context"
	"testing"
)

// TestAcquireAlwaysAdmits ensures the permissive limiter never blocks.
func TestAcquireAlwaysAdmits(t *testing.T) {
	t.Parallel()

	l := New()
	for i := 0; i < 100; i++ {
		release, err := l.Acquire(context.Background(), "reader")
		if err != nil {
			t.Fatalf("expected Acquire to succeed, got %v", err)
		}
		release()
	}
}

// TestAcquireHonorsCanceledContext ensures a dead context is still rejected.
func TestAcquireHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Acquire(ctx, "headless"); err == nil {
		t.Fatal("expected Acquire to fail with a canceled context")
	}
}
