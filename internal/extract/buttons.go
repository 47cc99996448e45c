package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	addToCartRe = regexp.MustCompile(`add to cart|add to bag|add to trolley|buy now`)
	wishlistRe  = regexp.MustCompile(`wishlist`)
	notifyRe    = regexp.MustCompile(`notify me when available`)
)

// ButtonSignals summarize purchase-intent controls seen in a region.
type ButtonSignals struct {
	HasAddToCart     bool
	AddToCartEnabled bool
	HasWishlist      bool
	HasNotify        bool
}

// ScanButtons inspects buttons, role=button elements, and anchors in the
// region. Labels come from aria-label first, then text.
func ScanButtons(region *goquery.Selection) ButtonSignals {
	var signals ButtonSignals
	region.Find(`button, [role="button"], a`).Each(func(_ int, el *goquery.Selection) {
		label := controlLabel(el)
		if addToCartRe.MatchString(label) {
			signals.HasAddToCart = true
			if !controlDisabled(el) {
				signals.AddToCartEnabled = true
			}
		}
		if wishlistRe.MatchString(label) {
			signals.HasWishlist = true
		}
		if notifyRe.MatchString(label) {
			signals.HasNotify = true
		}
	})
	return signals
}

// CartFormSubmitEnabled reports an enabled submit control inside an add-to-
// cart form, the strongest static CTA signal on Shopify-style storefronts.
func CartFormSubmitEnabled(region *goquery.Selection) bool {
	enabled := false
	region.Find(`form[action*="/cart/add"] button[type="submit"], button[name="add"]`).Each(func(_ int, el *goquery.Selection) {
		if enabled {
			return
		}
		label := controlLabel(el)
		if value, ok := el.Attr("value"); ok && label == "" {
			label = NormalizeText(value)
		}
		if addToCartRe.MatchString(label) && !controlDisabled(el) {
			enabled = true
		}
	})
	return enabled
}

// NotifyControlScoped reports a notify-me control inside the product form
// area only, excluding global widgets and modals that produce false OOS.
func NotifyControlScoped(region *goquery.Selection) bool {
	form := region.Find(`.product-form, .productView-actions, .product-form__buttons, .product__info, form[action*="/cart/add"]`)
	if form.Length() == 0 {
		return false
	}
	found := false
	form.Find("button, a").Each(func(_ int, el *goquery.Selection) {
		if found {
			return
		}
		if el.Closest(`.modal, .popup, .overlay, [class*="widget"]`).Length() > 0 {
			return
		}
		if notifyRe.MatchString(controlLabel(el)) {
			found = true
		}
	})
	return found
}

func controlLabel(el *goquery.Selection) string {
	if label, ok := el.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		return NormalizeText(label)
	}
	return NormalizeText(el.Text())
}

func controlDisabled(el *goquery.Selection) bool {
	if _, ok := el.Attr("disabled"); ok {
		return true
	}
	if v, ok := el.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	return el.HasClass("disabled")
}
