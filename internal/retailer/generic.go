package retailer

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/extract"
	"github.com/cardstock/stockwatch/internal/monitor"
)

type genericSignals struct {
	pageRemoved bool
	explicitOOS bool
	addToCart   bool
}

// The generic ladder: an enabled purchase-intent control, with explicit OOS
// text overriding it.
var genericLadder = []rule[genericSignals]{
	{monitor.StatusRemoved, monitor.ReasonPageNotFound, func(s genericSignals) bool { return s.pageRemoved }},
	{monitor.StatusOutOfStock, monitor.ReasonExplicitOOS, func(s genericSignals) bool { return s.explicitOOS }},
	{monitor.StatusInStock, monitor.ReasonAddToCartAvailable, func(s genericSignals) bool { return s.addToCart }},
}

// Generic is the DOM-heuristic fallback for platforms without a dedicated
// pipeline.
type Generic struct {
	fetcher monitor.Fetcher
	logger  *zap.Logger
}

// NewGeneric builds the fallback adapter.
func NewGeneric(deps Deps) *Generic {
	return &Generic{fetcher: deps.Fetcher, logger: deps.logger()}
}

// Adapt fetches once and decides from common selectors.
func (a *Generic) Adapt(ctx context.Context, target monitor.Target, _ monitor.AdaptOptions) monitor.NormalizedProduct {
	page, err := a.fetcher.Fetch(ctx, target.URL, "")
	if err != nil {
		return errorProduct(target, err)
	}
	d, err := extract.Parse(page)
	if err != nil {
		return errorProduct(target, err)
	}

	signals := genericSignals{
		pageRemoved: page.StatusCode == 404 || page.StatusCode == 410,
		explicitOOS: extract.StrongOOS(d.BodyText()),
		addToCart:   extract.ScanButtons(d.Find("body")).AddToCartEnabled,
	}

	verdict := decide(genericLadder, signals)
	a.logger.Debug("generic verdict",
		zap.String("url", target.URL),
		zap.String("status", string(verdict.Status)),
		zap.String("reason", verdict.Reason))

	price := extract.Price(d,
		".price", `[data-testid="price"]`, `[itemprop="price"]`, `meta[itemprop="price"]`,
		".product-price", ".Price", `[class*="price"]:not([class*="was"])`)

	return monitor.NormalizedProduct{
		Retailer: hostnameOf(target.URL),
		URL:      target.URL,
		Title:    extract.Title(d, "h1"),
		Variants: []monitor.NormalizedVariant{variantFor(verdict, price)},
		Verdict:  verdict,
		Evidence: evidence(page),
	}
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
