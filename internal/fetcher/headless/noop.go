package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

// Noop implements pipeline.Strategy but always fails, for builds where
// headless browsing is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Name reports the strategy identifier.
func (Noop) Name() string { return pipeline.StrategyHeadless }

// RendersJS reports true so the cascade treats the slot identically to a
// real browser.
func (Noop) RendersJS() bool { return true }

// Fetch returns an error since this is a stub implementation.
func (Noop) Fetch(_ context.Context, _ string) (pipeline.RawDocument, error) {
	return pipeline.RawDocument{}, &pipeline.FetchFailure{
		Strategy: pipeline.StrategyHeadless,
		Kind:     pipeline.FailUnsupported,
		Err:      errors.New("headless fetcher not configured"),
	}
}
