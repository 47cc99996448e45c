package retailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/extract"
	"github.com/cardstock/stockwatch/internal/hydrate"
	"github.com/cardstock/stockwatch/internal/monitor"
)

const (
	ebRetailer = "ebgames.com.au"
	ebReferer  = "https://www.ebgames.com.au/"

	// PDP containers tried in order before the chrome-stripped body fallback.
	ebContainers = `main, #main, .content, .product-container, [class*="product-detail"], [class*="pdp"], [class*="Product"]`
)

type ebSignals struct {
	pageRemoved      bool
	apiInStock       bool
	jsonld           extract.LDAvailability
	explicitPreorder bool
	strongOOS        bool
	weakOOS          bool
	// hydratedAddToCart is only ever set from a rendered DOM; a static
	// visible button proves nothing about purchasability.
	hydratedAddToCart bool
}

// The EB ladder. Preorder signals sit above strong OOS because EB preorder
// pages legitimately carry "sold out" wording for the physical allocation.
var ebLadder = []rule[ebSignals]{
	{monitor.StatusRemoved, monitor.ReasonPageNotFound, func(s ebSignals) bool { return s.pageRemoved }},
	{monitor.StatusInStock, monitor.ReasonAPIInStock, func(s ebSignals) bool { return s.apiInStock }},
	{monitor.StatusPreorder, monitor.ReasonJSONLDPreorder, func(s ebSignals) bool { return s.jsonld == extract.LDPreorder }},
	{monitor.StatusPreorder, monitor.ReasonJSONLDPreorder, func(s ebSignals) bool { return s.explicitPreorder }},
	{monitor.StatusOutOfStock, monitor.ReasonExplicitOOS, func(s ebSignals) bool { return s.strongOOS }},
	{monitor.StatusInStock, monitor.ReasonJSONLDInStock, func(s ebSignals) bool { return s.jsonld == extract.LDInStock }},
	{monitor.StatusOutOfStock, monitor.ReasonJSONLDOutOfStock, func(s ebSignals) bool { return s.jsonld == extract.LDOutOfStock }},
	{monitor.StatusOutOfStock, monitor.ReasonExplicitOOS, func(s ebSignals) bool { return s.weakOOS }},
	{monitor.StatusInStock, monitor.ReasonAddToCartAvailable, func(s ebSignals) bool { return s.hydratedAddToCart }},
}

// EBGames scrapes EB Games PDPs. Cloudflare sits in front of the site, so a
// blocked static fetch escalates straight to the headless path.
type EBGames struct {
	fetcher   monitor.Fetcher
	escalator *hydrate.Escalator
	logger    *zap.Logger
}

// NewEBGames builds the EB Games pipeline.
func NewEBGames(deps Deps) *EBGames {
	return &EBGames{fetcher: deps.Fetcher, escalator: deps.Escalator, logger: deps.logger()}
}

// Adapt fetches, decides, and escalates to hydration when blocked or UNKNOWN.
func (a *EBGames) Adapt(ctx context.Context, target monitor.Target, _ monitor.AdaptOptions) monitor.NormalizedProduct {
	page, err := a.fetcher.Fetch(ctx, target.URL, ebReferer)
	if err != nil {
		return errorProduct(target, err)
	}

	d, err := extract.Parse(page)
	if err != nil {
		return errorProduct(target, err)
	}

	// Anti-bot interception is not a product page. Escalate instead of
	// deciding over challenge markup.
	if page.StatusCode == 403 || extract.CloudflareChallenge(d) {
		if product, ok := a.escalator.Resolve(ctx, target.URL, a.decidePage(target)); ok {
			return product
		}
		return errorProduct(target, errBlocked)
	}

	product := a.decidePage(target)(page)
	if product.Verdict.Status == monitor.StatusUnknown && product.Err == nil {
		if hydrated, ok := a.escalator.Resolve(ctx, target.URL, a.decidePage(target)); ok {
			return hydrated
		}
	}
	return product
}

// decidePage runs extraction and the ladder over one page, static or
// hydrated.
func (a *EBGames) decidePage(target monitor.Target) hydrate.DecideFunc {
	return func(page monitor.Page) monitor.NormalizedProduct {
		d, err := extract.Parse(page)
		if err != nil {
			return errorProduct(target, err)
		}

		mainText := d.MainText(ebContainers)
		inv := extract.ScanInlineInventory(d)
		apiInStock := inv.Available() != nil && *inv.Available()

		signals := ebSignals{
			pageRemoved:      extract.PageRemoved(d, ebContainers),
			apiInStock:       apiInStock,
			jsonld:           extract.ScanJSONLD(d, true).Availability(extract.LDInStock, extract.LDOutOfStock, extract.LDPreorder),
			explicitPreorder: extract.PreorderText(mainText) || extract.PreorderHeuristics(mainText),
			strongOOS:        extract.StrongOOS(mainText),
			weakOOS:          extract.WeakOOS(mainText),
		}
		if page.Rendered {
			signals.hydratedAddToCart = extract.ScanButtons(d.Main(ebContainers)).AddToCartEnabled
		}

		verdict := decide(ebLadder, signals)
		a.logger.Debug("ebgames verdict",
			zap.String("url", target.URL),
			zap.String("status", string(verdict.Status)),
			zap.String("reason", verdict.Reason),
			zap.Bool("rendered", page.Rendered))

		price := extract.Price(d,
			".price-current", ".current-price", ".product-price", ".price",
			`[data-testid="price"]`, `[itemprop="price"]`)

		return monitor.NormalizedProduct{
			Retailer: ebRetailer,
			URL:      target.URL,
			Title:    extract.Title(d, "h1.product-title", `h1[data-testid="product-title"]`, ".product-name h1"),
			Variants: []monitor.NormalizedVariant{variantFor(verdict, price)},
			Verdict:  verdict,
			Evidence: evidence(page),
		}
	}
}
