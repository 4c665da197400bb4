// Package simple contains a permissive limiter for deployments that disable
// rate limiting.
package simple

import "context"

// Limiter implements pipeline.Limiter without enforcing any ceilings. Every
// acquire succeeds immediately unless the context is already done.
type Limiter struct{}

// New creates a new Limiter.
func New() *Limiter {
	return &Limiter{}
}

// Acquire admits the caller immediately. The returned release is a no-op.
func (Limiter) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}
