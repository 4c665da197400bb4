package cascade

import (
	"sync"
	"time"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

type healthConfig struct {
	threshold    int
	cooldownBase time.Duration
	cooldownMax  time.Duration
}

// strategyHealth is one strategy's failure streak and cooldown window.
type strategyHealth struct {
	consecutiveFailures int
	lastFailureAt       time.Time
	cooldownUntil       time.Time
	lastKind            pipeline.FailureKind
}

// healthTracker guards per-strategy health records. All methods are safe for
// concurrent use.
type healthTracker struct {
	mu     sync.Mutex
	cfg    healthConfig
	byName map[string]*strategyHealth
}

func newHealthTracker(cfg healthConfig) *healthTracker {
	if cfg.threshold <= 0 {
		cfg.threshold = defaultFailureThreshold
	}
	if cfg.cooldownBase <= 0 {
		cfg.cooldownBase = defaultCooldownBase
	}
	if cfg.cooldownMax <= 0 {
		cfg.cooldownMax = defaultCooldownMax
	}
	return &healthTracker{cfg: cfg, byName: make(map[string]*strategyHealth)}
}

// available reports whether the strategy may be attempted at now.
func (t *healthTracker) available(name string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byName[name]
	if !ok {
		return true
	}
	return h.cooldownUntil.IsZero() || !now.Before(h.cooldownUntil)
}

// recordSuccess clears the failure streak and any cooldown.
func (t *healthTracker) recordSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.health(name)
	h.consecutiveFailures = 0
	h.cooldownUntil = time.Time{}
}

// recordFailure notes the failure and benches the strategy once the streak
// crosses the threshold. Non-retryable failures count toward the streak but
// never bench. The cooldown doubles with each failure past the threshold,
// capped at cooldownMax. Returns true when the strategy entered or extended
// cooldown.
func (t *healthTracker) recordFailure(name string, f *pipeline.FetchFailure, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.health(name)
	h.consecutiveFailures++
	h.lastFailureAt = now
	h.lastKind = f.Kind
	if !f.Retryable || h.consecutiveFailures < t.cfg.threshold {
		return false
	}
	exp := h.consecutiveFailures - t.cfg.threshold
	if exp > 16 {
		exp = 16
	}
	backoff := t.cfg.cooldownBase * (1 << exp)
	if backoff > t.cfg.cooldownMax || backoff <= 0 {
		backoff = t.cfg.cooldownMax
	}
	h.cooldownUntil = now.Add(backoff)
	return true
}

// lastRecordedKind returns the kind of the most recent failure across all
// strategies, for aggregate errors when every strategy sat out a pass.
func (t *healthTracker) lastRecordedKind() (pipeline.FailureKind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var latest time.Time
	var kind pipeline.FailureKind
	found := false
	for _, h := range t.byName {
		if h.lastKind != "" && (!found || h.lastFailureAt.After(latest)) {
			latest = h.lastFailureAt
			kind = h.lastKind
			found = true
		}
	}
	return kind, found
}

// health returns the record for name; callers must hold mu.
func (t *healthTracker) health(name string) *strategyHealth {
	h, ok := t.byName[name]
	if !ok {
		h = &strategyHealth{}
		t.byName[name] = h
	}
	return h
}
