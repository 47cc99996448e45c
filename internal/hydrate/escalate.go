package hydrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// DecideFunc re-runs a retailer's verdict decision against a rendered page.
type DecideFunc func(page monitor.Page) monitor.NormalizedProduct

// Escalator drives the render-and-redecide loop for weak static verdicts.
type Escalator struct {
	renderer   monitor.Renderer
	maxRetries int
	logger     *zap.Logger
}

// NewEscalator builds an Escalator. maxRetries bounds how many hydrated
// passes run while the verdict stays UNKNOWN.
func NewEscalator(renderer monitor.Renderer, maxRetries int, logger *zap.Logger) *Escalator {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{renderer: renderer, maxRetries: maxRetries, logger: logger}
}

// Resolve renders the URL and re-decides, retrying while the hydrated verdict
// is still UNKNOWN. The last hydrated product is returned even when UNKNOWN;
// a still-UNKNOWN hydrated verdict is final. ok is false when no render
// succeeded, in which case the caller keeps its static verdict.
func (e *Escalator) Resolve(ctx context.Context, url string, decide DecideFunc) (monitor.NormalizedProduct, bool) {
	var (
		product monitor.NormalizedProduct
		ok      bool
	)
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		page, err := e.renderer.Render(ctx, url)
		if err != nil {
			e.logger.Debug("hydrated render failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err))
			break
		}
		product = decide(page)
		ok = true
		if product.Verdict.Status != monitor.StatusUnknown {
			return product, true
		}
	}
	return product, ok
}
