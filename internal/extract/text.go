package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	strongOOSRe = regexp.MustCompile(`sold out|out of stock|no longer available`)
	weakOOSRe   = regexp.MustCompile(`unavailable online|currently unavailable|not available online|not available`)

	preorderRe = regexp.MustCompile(`preorder|pre-order|pre\s+order`)
	// Release-date chips like "Fri, 14 Nov 2025" near the buy area mark
	// preorder listings even without the word itself.
	releaseRe = regexp.MustCompile(`\b(release|releases|releasing|release date)\b|\b(?:mon|tue|wed|thu|fri|sat|sun),?\s+\d{1,2}\s+\w+\s+\d{4}\b`)
	depositRe = regexp.MustCompile(`\bdeposit\b`)

	soft404Re = regexp.MustCompile(`our princess is in another castle|we couldn.?t find the page|page not found|may have been moved or deleted`)

	priceRe = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
)

// skeletonSelectors match loading placeholders across common frameworks.
var skeletonSelectors = `.MuiSkeleton-root, [class*="skeleton"], [data-testid*="skeleton"], [aria-busy="true"]`

// StrongOOS reports explicit, high-confidence out-of-stock wording.
func StrongOOS(text string) bool {
	return strongOOSRe.MatchString(text)
}

// WeakOOS reports hedged out-of-stock wording that alone should not beat
// stronger signals.
func WeakOOS(text string) bool {
	return weakOOSRe.MatchString(text)
}

// PreorderText reports explicit preorder wording.
func PreorderText(text string) bool {
	return preorderRe.MatchString(text)
}

// PreorderHeuristics reports release-date or deposit hints used by retailers
// that label preorders indirectly.
func PreorderHeuristics(text string) bool {
	return releaseRe.MatchString(text) || depositRe.MatchString(text)
}

// SoftRemoved reports soft-404 wording in main content. HTTP 404/410 are
// handled by the caller from transport status.
func SoftRemoved(text string) bool {
	return soft404Re.MatchString(text)
}

// PageRemoved combines the transport status with soft-404 content detection.
func PageRemoved(d *Document, containers string) bool {
	if d.StatusCode() == 404 || d.StatusCode() == 410 {
		return true
	}
	return SoftRemoved(d.MainText(containers))
}

// CloudflareChallenge detects anti-bot interstitials. These pages are not
// product pages; the caller escalates to hydration instead of deciding.
func CloudflareChallenge(d *Document) bool {
	title := strings.ToLower(d.TitleTag())
	if strings.Contains(title, "just a moment") || strings.Contains(title, "attention required") {
		return true
	}
	body := d.BodyText()
	if strings.Contains(body, "enable javascript") || strings.Contains(body, "enable cookies") {
		return true
	}
	raw := string(d.Page().Body)
	return strings.Contains(raw, "cdn-cgi/challenge-platform") || strings.Contains(raw, "_cf_chl_opt")
}

// HasSkeleton reports loading placeholders inside the given region.
func HasSkeleton(region *goquery.Selection) bool {
	return region.Find(skeletonSelectors).Length() > 0
}

// SanitizePrice extracts a positive decimal from price text or attribute
// values. Returns nil when no usable number is present.
func SanitizePrice(value string) *decimal.Decimal {
	match := priceRe.FindString(value)
	if match == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil || !d.IsPositive() {
		return nil
	}
	return &d
}

// Title resolves the product title through a selector chain, falling back to
// og:title and the title tag.
func Title(d *Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(d.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t := d.MetaContent(`meta[property="og:title"]`); t != "" {
		return t
	}
	if t := d.TitleTag(); t != "" {
		return t
	}
	return "Unknown Product"
}

// Price resolves a price through a selector chain, preferring content/value
// attributes over element text.
func Price(d *Document, selectors ...string) *decimal.Decimal {
	for _, sel := range selectors {
		el := d.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if content, ok := el.Attr("content"); ok {
			if p := SanitizePrice(content); p != nil {
				return p
			}
		}
		if value, ok := el.Attr("value"); ok {
			if p := SanitizePrice(value); p != nil {
				return p
			}
		}
		if p := SanitizePrice(strings.TrimSpace(el.Text())); p != nil {
			return p
		}
	}
	return nil
}
