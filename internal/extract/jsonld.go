package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// LDAvailability is the schema.org offer availability reduced to the values
// the decision engines care about.
type LDAvailability string

// Availability values derived from JSON-LD offers.
const (
	LDInStock    LDAvailability = "InStock"
	LDOutOfStock LDAvailability = "OutOfStock"
	LDPreorder   LDAvailability = "PreOrder"
	LDUnknown    LDAvailability = "Unknown"
)

// LDOffer aggregates every availability flag seen across a page's JSON-LD
// offers, plus the first usable price. Retailers set their own priority when
// collapsing the flags to one availability value.
type LDOffer struct {
	InStock    bool
	OutOfStock bool
	Preorder   bool
	Price      *decimal.Decimal
	Currency   string
}

// ScanJSONLD walks every application/ld+json script. Malformed payloads are
// skipped, never fatal. With productOnly set, only @type Product nodes are
// trusted (listing pages embed offer markup for unrelated items).
func ScanJSONLD(d *Document, productOnly bool) LDOffer {
	var offer LDOffer
	d.Find(`script[type="application/ld+json"]`).Each(func(_ int, el *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(el.Text()), &data); err != nil {
			return
		}
		items, ok := data.([]any)
		if !ok {
			items = []any{data}
		}
		for _, item := range items {
			node, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if productOnly {
				if t, _ := node["@type"].(string); t != "Product" {
					continue
				}
			}
			for _, off := range offerNodes(node) {
				mergeOffer(&offer, off)
			}
		}
	})
	return offer
}

// Availability collapses the flags using the supplied priority order.
func (o LDOffer) Availability(priority ...LDAvailability) LDAvailability {
	for _, p := range priority {
		switch {
		case p == LDInStock && o.InStock:
			return LDInStock
		case p == LDOutOfStock && o.OutOfStock:
			return LDOutOfStock
		case p == LDPreorder && o.Preorder:
			return LDPreorder
		}
	}
	return LDUnknown
}

func offerNodes(product map[string]any) []map[string]any {
	var raw any
	for _, key := range []string{"offers", "offer", "Offers"} {
		if v, ok := product[key]; ok && v != nil {
			raw = v
			break
		}
	}
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{v}
	default:
		return nil
	}
}

func mergeOffer(dst *LDOffer, off map[string]any) {
	avail, _ := off["availability"].(string)
	lower := strings.ToLower(avail)
	switch {
	case strings.Contains(lower, "instock"):
		dst.InStock = true
	case strings.Contains(lower, "outofstock"):
		dst.OutOfStock = true
	case strings.Contains(lower, "preorder"):
		dst.Preorder = true
	}

	if dst.Price == nil {
		if price := offerPrice(off); price != nil {
			dst.Price = price
			if cur, ok := off["priceCurrency"].(string); ok {
				dst.Currency = cur
			}
		}
	}
}

func offerPrice(off map[string]any) *decimal.Decimal {
	raw := off["price"]
	if raw == nil {
		if spec, ok := off["priceSpecification"].(map[string]any); ok {
			raw = spec["price"]
		}
	}
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			d := decimal.NewFromFloat(v)
			return &d
		}
	case string:
		return SanitizePrice(v)
	}
	return nil
}
