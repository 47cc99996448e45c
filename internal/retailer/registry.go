package retailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/hydrate"
	"github.com/cardstock/stockwatch/internal/monitor"
)

// errBlocked marks a static fetch stopped by an anti-bot challenge that the
// headless path also failed to get past.
var errBlocked = errors.New("blocked by anti-bot challenge")

// Platform keys recognized by the registry. Anything else falls back to the
// generic DOM adapter.
const (
	PlatformEBGames            = "ebgames"
	PlatformBigW               = "bigw"
	PlatformKmart              = "kmart"
	PlatformCollectibleMadness = "collectiblemadness"
	PlatformGeneric            = "genericDom"
)

// Deps carries everything an adapter pipeline needs.
type Deps struct {
	Fetcher   monitor.Fetcher
	Escalator *hydrate.Escalator
	Logger    *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Registry is an explicit adapter table constructed once at startup. No
// global mutable state; stub adapters can be injected in tests by building a
// Registry around them.
type Registry struct {
	adapters map[string]monitor.Adapter
	generic  monitor.Adapter
	logger   *zap.Logger
}

// NewRegistry wires the retailer pipelines.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	generic := NewGeneric(deps)
	return &Registry{
		adapters: map[string]monitor.Adapter{
			PlatformEBGames:            NewEBGames(deps),
			PlatformBigW:               NewBigW(deps),
			PlatformKmart:              NewKmart(deps),
			PlatformCollectibleMadness: NewCollectibleMadness(deps),
			PlatformGeneric:            generic,
		},
		generic: generic,
		logger:  deps.Logger,
	}
}

// Adapt resolves the pipeline for the target's platform and runs it. A
// panicking adapter is converted into a placeholder result so one bad target
// never aborts the batch.
func (r *Registry) Adapt(ctx context.Context, target monitor.Target, opts monitor.AdaptOptions) (product monitor.NormalizedProduct) {
	adapter := r.generic
	if a, ok := r.adapters[target.RetailerPlatform]; ok {
		adapter = a
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("adapter panicked",
				zap.String("platform", target.RetailerPlatform),
				zap.String("url", target.URL),
				zap.Any("panic", rec))
			product = errorProduct(target, fmt.Errorf("adapter panic: %v", rec))
		}
	}()

	return adapter.Adapt(ctx, target, opts)
}

// errorProduct is the best-effort placeholder for a failed adapter run.
func errorProduct(target monitor.Target, err error) monitor.NormalizedProduct {
	return monitor.NormalizedProduct{
		Retailer: target.RetailerPlatform,
		URL:      target.URL,
		Title:    "Error loading product",
		Variants: []monitor.NormalizedVariant{{InStock: false, Price: nil}},
		Verdict:  monitor.Verdict{Status: monitor.StatusUnknown, Reason: monitor.ReasonUnknown},
		Err:      err,
	}
}

// evidence snapshots the decisive page for archiving on change.
func evidence(page monitor.Page) *monitor.PageEvidence {
	return &monitor.PageEvidence{
		URL:        page.URL,
		StatusCode: page.StatusCode,
		Body:       page.Body,
		Rendered:   page.Rendered,
		FetchedAt:  page.FetchedAt,
	}
}

// variantFor maps a verdict onto the flags of the single observed variant.
func variantFor(verdict monitor.Verdict, price *decimal.Decimal) monitor.NormalizedVariant {
	return monitor.NormalizedVariant{
		Price:         price,
		InStock:       verdict.Status == monitor.StatusInStock,
		IsPreorder:    verdict.Status == monitor.StatusPreorder,
		IsInStoreOnly: verdict.Reason == monitor.ReasonInStoreOnly,
		IsUnavailable: verdict.Status == monitor.StatusRemoved,
	}
}
