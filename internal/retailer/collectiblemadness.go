package retailer

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/extract"
	"github.com/cardstock/stockwatch/internal/hydrate"
	"github.com/cardstock/stockwatch/internal/monitor"
)

const (
	cmRetailer   = "Collectible Madness"
	cmContainers = `main, #MainContent, .product, .productView, .product-single, .product-page`

	cmStockNodePrimary  = ".product-form__inventory"
	cmStockNodeFallback = `.productView-availability, .product__stock, .product-form__inventory, [class*="stock"], .product__info-stock`
	cmInventoryBadges   = ".product-form__inventory.inventory--high, .product-form__inventory.inventory--medium, .product-form__inventory.inventory--low"

	cmHeaderSelectors = ".badge, .label, .productView-badges, h1, .product__title"
	cmDescSelectors   = ".product__description, .productView-description, #product-description, .rte, .tabs-content"
)

var (
	cmInStockLineRe = regexp.MustCompile(`\bin stock\b`)
	cmEnquireRe     = regexp.MustCompile(`\benquire\b`)
)

type cmSignals struct {
	pageRemoved      bool
	jsonld           extract.LDAvailability
	explicitPreorder bool
	stockInStock     bool
	stockEnquire     bool
	hasNotify        bool
	addToCartEnabled bool
}

// The Collectible Madness ladder. JSON-LD short-circuits when present; the
// Shopify "Stock:" line and the cart form carry the rest.
var cmLadder = []rule[cmSignals]{
	{monitor.StatusRemoved, monitor.ReasonPageNotFound, func(s cmSignals) bool { return s.pageRemoved }},
	{monitor.StatusPreorder, monitor.ReasonJSONLDPreorder, func(s cmSignals) bool { return s.jsonld == extract.LDPreorder }},
	{monitor.StatusInStock, monitor.ReasonJSONLDInStock, func(s cmSignals) bool { return s.jsonld == extract.LDInStock }},
	{monitor.StatusOutOfStock, monitor.ReasonJSONLDOutOfStock, func(s cmSignals) bool { return s.jsonld == extract.LDOutOfStock }},
	{monitor.StatusPreorder, monitor.ReasonExplicitPreorder, func(s cmSignals) bool { return s.explicitPreorder }},
	{monitor.StatusInStock, monitor.ReasonStockLine, func(s cmSignals) bool { return s.stockInStock }},
	{monitor.StatusInStock, monitor.ReasonAddToCartAvailable, func(s cmSignals) bool { return s.addToCartEnabled }},
	{monitor.StatusOutOfStock, monitor.ReasonEnquireOnly, func(s cmSignals) bool { return s.stockEnquire || s.hasNotify }},
}

// CollectibleMadness scrapes a Shopify storefront. The static markup often
// lacks every stock signal until client scripts run, so weak or absent
// signals escalate to hydration.
type CollectibleMadness struct {
	fetcher   monitor.Fetcher
	escalator *hydrate.Escalator
	logger    *zap.Logger
}

// NewCollectibleMadness builds the Collectible Madness pipeline.
func NewCollectibleMadness(deps Deps) *CollectibleMadness {
	return &CollectibleMadness{fetcher: deps.Fetcher, escalator: deps.Escalator, logger: deps.logger()}
}

// Adapt fetches and decides; UNKNOWN, an OOS built only from enquire/notify
// affordances, or a page with no signals at all re-runs against the hydrated
// DOM.
func (a *CollectibleMadness) Adapt(ctx context.Context, target monitor.Target, _ monitor.AdaptOptions) monitor.NormalizedProduct {
	page, err := a.fetcher.Fetch(ctx, target.URL, "")
	if err != nil {
		return errorProduct(target, err)
	}

	product, signals := a.decidePage(target, page)
	if product.Err == nil && needsHydration(product.Verdict.Status, signals) {
		if hydrated, ok := a.escalator.Resolve(ctx, target.URL, func(p monitor.Page) monitor.NormalizedProduct {
			hp, _ := a.decidePage(target, p)
			return hp
		}); ok {
			return hydrated
		}
	}
	return product
}

// needsHydration reports whether the static verdict is too weak to persist.
func needsHydration(status monitor.Status, s cmSignals) bool {
	if status == monitor.StatusUnknown {
		return true
	}
	weakOOSOnly := status == monitor.StatusOutOfStock &&
		!s.stockInStock && !s.addToCartEnabled && !s.explicitPreorder &&
		(s.stockEnquire || s.hasNotify)
	if weakOOSOnly {
		return true
	}
	return !s.stockInStock && !s.stockEnquire && !s.addToCartEnabled && !s.explicitPreorder
}

func (a *CollectibleMadness) decidePage(target monitor.Target, page monitor.Page) (monitor.NormalizedProduct, cmSignals) {
	d, err := extract.Parse(page)
	if err != nil {
		return errorProduct(target, err), cmSignals{}
	}

	region := d.Main(cmContainers)

	stockNode := region.Find(cmStockNodePrimary).First()
	if stockNode.Length() == 0 {
		stockNode = region.Find(cmStockNodeFallback).First()
	}
	stockLine := extract.NormalizeText(stockNode.Text())

	header := extract.NormalizeText(region.Find(cmHeaderSelectors).Text())
	desc := extract.NormalizeText(region.Find(cmDescSelectors).Text())

	signals := cmSignals{
		pageRemoved:      page.StatusCode == 404 || page.StatusCode == 410,
		jsonld:           extract.ScanJSONLD(d, false).Availability(extract.LDInStock, extract.LDPreorder, extract.LDOutOfStock),
		explicitPreorder: extract.PreorderText(header) || extract.PreorderText(desc),
		stockInStock:     region.Find(cmInventoryBadges).Length() > 0 || cmInStockLineRe.MatchString(stockLine),
		stockEnquire:     cmEnquireRe.MatchString(stockLine),
		hasNotify:        extract.NotifyControlScoped(region),
		addToCartEnabled: extract.CartFormSubmitEnabled(region),
	}

	verdict := decide(cmLadder, signals)
	a.logger.Debug("collectiblemadness verdict",
		zap.String("url", target.URL),
		zap.String("status", string(verdict.Status)),
		zap.String("reason", verdict.Reason),
		zap.Bool("rendered", page.Rendered))

	price := extract.Price(d, ".sale-price", ".price", `[class*="price"]`, `[itemprop="price"]`)

	product := monitor.NormalizedProduct{
		Retailer: cmRetailer,
		URL:      target.URL,
		Title:    extract.Title(d, "h1", ".productView-title", ".product__title"),
		Variants: []monitor.NormalizedVariant{variantFor(verdict, price)},
		Verdict:  verdict,
		Evidence: evidence(page),
	}
	// CM never marks variants unavailable, matching its storefront model.
	product.Variants[0].IsUnavailable = false
	return product, signals
}
