// Package ratelimit gates fetch strategies on request rate and in-flight
// concurrency.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/feedharvest/internal/metrics"
)

// StrategyLimit holds the admission ceilings for one strategy. Zero values
// mean unlimited.
type StrategyLimit struct {
	RPS   float64
	Burst int
	Slots int
}

// Config maps strategy names to their limits. Strategies absent from the map
// run unlimited.
type Config struct {
	Strategies map[string]StrategyLimit
}

// Limiter implements pipeline.Limiter with a token bucket plus a concurrency
// slot channel per strategy. The slot is taken before waiting on the bucket
// and returned if the wait fails, so a canceled acquire never leaks capacity.
type Limiter struct {
	mu    sync.Mutex
	gates map[string]*strategyGate
	cfg   Config
}

type strategyGate struct {
	bucket *rate.Limiter
	slots  chan struct{}
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		gates: make(map[string]*strategyGate),
		cfg:   cfg,
	}
}

// Acquire blocks until the strategy's rate and concurrency budgets both
// admit the caller, or ctx is done. The returned release is safe to call
// more than once; extra calls are no-ops.
func (l *Limiter) Acquire(ctx context.Context, strategy string) (func(), error) {
	gate := l.gateFor(strategy)

	start := time.Now()
	if gate.slots != nil {
		select {
		case gate.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s slot: %w", strategy, ctx.Err())
		}
	}
	if err := gate.bucket.Wait(ctx); err != nil {
		if gate.slots != nil {
			<-gate.slots
		}
		return nil, fmt.Errorf("acquire %s rate: %w", strategy, err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(strategy, delay)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if gate.slots != nil {
				<-gate.slots
			}
		})
	}
	return release, nil
}

func (l *Limiter) gateFor(strategy string) *strategyGate {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gate, ok := l.gates[strategy]; ok {
		return gate
	}

	limit := l.cfg.Strategies[strategy]
	r := rate.Limit(limit.RPS)
	if limit.RPS <= 0 {
		r = rate.Inf
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}
	gate := &strategyGate{bucket: rate.NewLimiter(r, burst)}
	if limit.Slots > 0 {
		gate.slots = make(chan struct{}, limit.Slots)
	}
	l.gates[strategy] = gate
	return gate
}
