package retailer

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/extract"
	"github.com/cardstock/stockwatch/internal/monitor"
)

const (
	kmartRetailer = "kmart.com.au"
	kmartReferer  = "https://www.kmart.com.au/"
)

var (
	kmartInStoreRe = regexp.MustCompile(`in store only|in-store only|available in store|check stock at`)
	kmartOOSRe     = regexp.MustCompile(`out of stock|sold out|unavailable|notify me|currently unavailable`)
)

type kmartSignals struct {
	pageRemoved bool
	inStoreOnly bool
	addToCart   bool
	oosText     bool
}

// The Kmart ladder. In-store-only listings count as stocked with the
// in-store flag so alerts can still fire; the online cart button decides the
// rest.
var kmartLadder = []rule[kmartSignals]{
	{monitor.StatusRemoved, monitor.ReasonPageNotFound, func(s kmartSignals) bool { return s.pageRemoved }},
	{monitor.StatusInStock, monitor.ReasonInStoreOnly, func(s kmartSignals) bool { return s.inStoreOnly }},
	{monitor.StatusInStock, monitor.ReasonAddToCartAvailable, func(s kmartSignals) bool { return s.addToCart }},
	{monitor.StatusOutOfStock, monitor.ReasonExplicitOOS, func(s kmartSignals) bool { return s.oosText }},
}

// Kmart scrapes Kmart PDPs from static markup only; the site renders its
// stock state server-side.
type Kmart struct {
	fetcher monitor.Fetcher
	logger  *zap.Logger
}

// NewKmart builds the Kmart pipeline.
func NewKmart(deps Deps) *Kmart {
	return &Kmart{fetcher: deps.Fetcher, logger: deps.logger()}
}

// Adapt fetches and decides in one static pass.
func (a *Kmart) Adapt(ctx context.Context, target monitor.Target, _ monitor.AdaptOptions) monitor.NormalizedProduct {
	page, err := a.fetcher.Fetch(ctx, target.URL, kmartReferer)
	if err != nil {
		return errorProduct(target, err)
	}
	d, err := extract.Parse(page)
	if err != nil {
		return errorProduct(target, err)
	}

	body := d.BodyText()
	signals := kmartSignals{
		pageRemoved: page.StatusCode == 404 || page.StatusCode == 410,
		inStoreOnly: kmartInStoreRe.MatchString(body) || d.Find(`[data-automation*="store-only"]`).Length() > 0,
		addToCart:   kmartAddToCart(d),
		oosText:     kmartOOSRe.MatchString(body),
	}

	verdict := decide(kmartLadder, signals)
	a.logger.Debug("kmart verdict",
		zap.String("url", target.URL),
		zap.String("status", string(verdict.Status)),
		zap.String("reason", verdict.Reason))

	price := extract.Price(d,
		`[data-automation="product-price"]`, ".price", ".Price", ".product-price")

	return monitor.NormalizedProduct{
		Retailer: kmartRetailer,
		URL:      target.URL,
		Title:    extract.Title(d, `h1[data-automation="product-title"]`),
		Variants: []monitor.NormalizedVariant{variantFor(verdict, price)},
		Verdict:  verdict,
		Evidence: evidence(page),
	}
}

func kmartAddToCart(d *extract.Document) bool {
	if d.Find(`[data-automation="add-to-cart"]:not([disabled]):not(.disabled)`).Length() > 0 {
		return true
	}
	enabled := false
	d.Find("button").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(el.Text()))
		if !strings.Contains(label, "add to cart") {
			return true
		}
		if _, disabled := el.Attr("disabled"); disabled || el.HasClass("disabled") {
			return true
		}
		enabled = true
		return false
	})
	return enabled
}
