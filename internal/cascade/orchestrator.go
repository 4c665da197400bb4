// Package cascade runs the configured fetch strategies in order until one
// produces a usable document.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/metrics"
	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const (
	defaultAttemptTimeout   = 30 * time.Second
	defaultFailureThreshold = 3
	defaultCooldownBase     = 5 * time.Second
	defaultCooldownMax      = 5 * time.Minute
)

// Config tunes the cascade.
type Config struct {
	// DefaultAttemptTimeout bounds a single strategy attempt.
	DefaultAttemptTimeout time.Duration
	// AttemptTimeouts overrides the attempt deadline per strategy name.
	AttemptTimeouts map[string]time.Duration
	// FailureThreshold is the consecutive-failure count that benches a
	// strategy.
	FailureThreshold int
	// CooldownBase and CooldownMax bound the bench duration.
	CooldownBase time.Duration
	CooldownMax  time.Duration
}

// Orchestrator implements pipeline.Fetcher by trying each strategy in its
// configured order, skipping strategies that are cooling down after repeated
// failures.
type Orchestrator struct {
	strategies []pipeline.Strategy
	limiter    pipeline.Limiter
	clock      pipeline.Clock
	health     *healthTracker
	cfg        Config
	logger     *zap.Logger
}

// New wires the orchestrator. The strategy slice must be non-empty; order is
// preserved.
func New(
	strategies []pipeline.Strategy,
	limiter pipeline.Limiter,
	clk pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if len(strategies) == 0 {
		return nil, errors.New("cascade: no strategies configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultAttemptTimeout <= 0 {
		cfg.DefaultAttemptTimeout = defaultAttemptTimeout
	}
	return &Orchestrator{
		strategies: strategies,
		limiter:    limiter,
		clock:      clk,
		health: newHealthTracker(healthConfig{
			threshold:    cfg.FailureThreshold,
			cooldownBase: cfg.CooldownBase,
			cooldownMax:  cfg.CooldownMax,
		}),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Fetch tries each available strategy in order and returns the first
// document. When every attempt fails, the returned error wraps the last
// attempt's FetchFailure so callers can classify it.
func (o *Orchestrator) Fetch(ctx context.Context, url string) (pipeline.RawDocument, error) {
	var last *pipeline.FetchFailure
	for _, strategy := range o.strategies {
		name := strategy.Name()
		if !o.health.available(name, o.clock.Now()) {
			o.logger.Debug("strategy cooling down, skipping",
				zap.String("strategy", name),
				zap.String("url", url),
			)
			continue
		}

		doc, err := o.attempt(ctx, strategy, url)
		if err == nil {
			o.health.recordSuccess(name)
			metrics.ObserveFetch(name, "success", len(doc.Body))
			return doc, nil
		}
		if ctx.Err() != nil {
			// Parent context is done; bail out without touching health.
			return pipeline.RawDocument{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}

		failure := classify(name, err)
		if o.health.recordFailure(name, failure, o.clock.Now()) {
			metrics.ObserveCooldown(name)
			o.logger.Warn("strategy entered cooldown",
				zap.String("strategy", name),
				zap.String("kind", string(failure.Kind)),
			)
		}
		metrics.ObserveFetch(name, string(failure.Kind), 0)
		o.logger.Debug("strategy failed, cascading",
			zap.String("strategy", name),
			zap.String("url", url),
			zap.Error(failure),
		)
		last = failure
	}

	if last == nil {
		kind, ok := o.health.lastRecordedKind()
		if !ok {
			kind = pipeline.FailUnsupported
		}
		last = &pipeline.FetchFailure{Strategy: "cascade", Kind: kind}
	}
	return pipeline.RawDocument{}, fmt.Errorf("all strategies failed for %s: %w", url, last)
}

func (o *Orchestrator) attempt(ctx context.Context, strategy pipeline.Strategy, url string) (pipeline.RawDocument, error) {
	release, err := o.limiter.Acquire(ctx, strategy.Name())
	if err != nil {
		return pipeline.RawDocument{}, err
	}
	defer release()

	attemptCtx, cancel := context.WithTimeout(ctx, o.timeoutFor(strategy.Name()))
	defer cancel()
	return strategy.Fetch(attemptCtx, url)
}

func (o *Orchestrator) timeoutFor(name string) time.Duration {
	if d, ok := o.cfg.AttemptTimeouts[name]; ok && d > 0 {
		return d
	}
	return o.cfg.DefaultAttemptTimeout
}

// classify normalizes any strategy error into a FetchFailure.
func classify(strategy string, err error) *pipeline.FetchFailure {
	if f, ok := pipeline.AsFetchFailure(err); ok {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &pipeline.FetchFailure{Strategy: strategy, Kind: pipeline.FailTimeout, Retryable: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &pipeline.FetchFailure{Strategy: strategy, Kind: pipeline.FailTimeout, Retryable: true, Err: err}
	}
	return &pipeline.FetchFailure{Strategy: strategy, Kind: pipeline.FailParse, Err: err}
}
