package retailer

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/extract"
	"github.com/cardstock/stockwatch/internal/hydrate"
	"github.com/cardstock/stockwatch/internal/monitor"
)

const bigwRetailer = "bigw.com.au"

var (
	// Big W's OOS wording shows up body-wide, including the hedged
	// "unavailable".
	bigwOOSRe = regexp.MustCompile(`out of stock|sold out|unavailable`)

	// PDP URLs end in /p/<productId>.
	bigwSKURe = regexp.MustCompile(`/p/(\w+)$`)
)

type bigwSignals struct {
	pageRemoved bool
	// inventory is the server-computed availability boolean mined from
	// inlined script payloads; nil when absent.
	inventory    *bool
	jsonld       extract.LDAvailability
	explicitOOS  bool
	hasAddToCart bool
	hasWishlist  bool
	hydrated     bool
}

// The Big W ladder. The inlined inventory boolean is authoritative in both
// directions. Button signals are only trusted from a rendered DOM: the static
// markup ships a wishlist control before the cart button hydrates, which
// would otherwise read as OOS.
var bigwLadder = []rule[bigwSignals]{
	{monitor.StatusRemoved, monitor.ReasonPageNotFound, func(s bigwSignals) bool { return s.pageRemoved }},
	{monitor.StatusInStock, monitor.ReasonAPIInStock, func(s bigwSignals) bool { return s.inventory != nil && *s.inventory }},
	{monitor.StatusOutOfStock, monitor.ReasonExplicitOOS, func(s bigwSignals) bool { return s.inventory != nil && !*s.inventory }},
	{monitor.StatusOutOfStock, monitor.ReasonExplicitOOS, func(s bigwSignals) bool { return s.explicitOOS }},
	{monitor.StatusInStock, monitor.ReasonJSONLDInStock, func(s bigwSignals) bool { return s.jsonld == extract.LDInStock }},
	{monitor.StatusPreorder, monitor.ReasonJSONLDPreorder, func(s bigwSignals) bool { return s.jsonld == extract.LDPreorder }},
	{monitor.StatusOutOfStock, monitor.ReasonJSONLDOutOfStock, func(s bigwSignals) bool { return s.jsonld == extract.LDOutOfStock }},
	{monitor.StatusInStock, monitor.ReasonAddToCartAvailable, func(s bigwSignals) bool { return s.hydrated && s.hasAddToCart }},
	{monitor.StatusOutOfStock, monitor.ReasonWishlistOnly, func(s bigwSignals) bool { return s.hydrated && s.hasWishlist && !s.hasAddToCart }},
}

// BigW scrapes Big W PDPs, mining the Next.js payload for the server's
// inventory booleans before trusting anything in the DOM.
type BigW struct {
	fetcher   monitor.Fetcher
	escalator *hydrate.Escalator
	logger    *zap.Logger
}

// NewBigW builds the Big W pipeline.
func NewBigW(deps Deps) *BigW {
	return &BigW{fetcher: deps.Fetcher, escalator: deps.Escalator, logger: deps.logger()}
}

// Adapt fetches and decides; a static UNKNOWN (including the SSR
// wishlist-without-cart shape) escalates to hydration.
func (a *BigW) Adapt(ctx context.Context, target monitor.Target, _ monitor.AdaptOptions) monitor.NormalizedProduct {
	page, err := a.fetcher.Fetch(ctx, target.URL, "")
	if err != nil {
		return errorProduct(target, err)
	}

	product := a.decidePage(target)(page)
	if product.Verdict.Status == monitor.StatusUnknown && product.Err == nil {
		if hydrated, ok := a.escalator.Resolve(ctx, target.URL, a.decidePage(target)); ok {
			return hydrated
		}
	}
	return product
}

func (a *BigW) decidePage(target monitor.Target) hydrate.DecideFunc {
	return func(page monitor.Page) monitor.NormalizedProduct {
		d, err := extract.Parse(page)
		if err != nil {
			return errorProduct(target, err)
		}

		inv := extract.ScanInlineInventory(d)
		ld := extract.ScanJSONLD(d, false)
		buttons := extract.ScanButtons(d.Find("body"))

		signals := bigwSignals{
			pageRemoved:  page.StatusCode == 404 || page.StatusCode == 410,
			inventory:    inv.Available(),
			jsonld:       ld.Availability(extract.LDInStock, extract.LDOutOfStock, extract.LDPreorder),
			explicitOOS:  bigwOOSRe.MatchString(d.BodyText()),
			hasAddToCart: buttons.HasAddToCart,
			hasWishlist:  buttons.HasWishlist,
			hydrated:     page.Rendered,
		}

		verdict := decide(bigwLadder, signals)
		a.logger.Debug("bigw verdict",
			zap.String("url", target.URL),
			zap.String("status", string(verdict.Status)),
			zap.String("reason", verdict.Reason),
			zap.Bool("rendered", page.Rendered))

		// Inventory-scan price beats JSON-LD price.
		price := inv.Price
		if price == nil {
			price = ld.Price
		}

		variant := variantFor(verdict, price)
		if inv.Preorder != nil && *inv.Preorder && variant.InStock {
			variant.IsPreorder = true
		}

		return monitor.NormalizedProduct{
			Retailer: bigwRetailer,
			URL:      target.URL,
			Title:    extract.Title(d),
			SKU:      bigwSKU(target.URL),
			Variants: []monitor.NormalizedVariant{variant},
			Verdict:  verdict,
			Evidence: evidence(page),
		}
	}
}

func bigwSKU(url string) string {
	if m := bigwSKURe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}
