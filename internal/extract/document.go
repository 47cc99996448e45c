// Package extract parses fetched markup into a structured view and derives
// retailer signals from it. Everything here is a pure function of the
// document; extraction never aborts on a single malformed fragment.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// chromeSelectors match page furniture that must not contribute phrase
// signals (header/footer "sold out" banners are a known false positive).
const chromeSelectors = `header, nav, footer, [class*="header"], [class*="Header"], [class*="footer"], [class*="Footer"]`

var whitespaceRe = regexp.MustCompile(`\s+`)

// Document is a parsed page plus the transport status it arrived with.
type Document struct {
	page monitor.Page
	doc  *goquery.Document
}

// Parse builds a Document from a fetched page.
func Parse(page monitor.Page) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{page: page, doc: doc}, nil
}

// Page returns the underlying fetched page.
func (d *Document) Page() monitor.Page {
	return d.page
}

// StatusCode returns the transport status the page arrived with.
func (d *Document) StatusCode() int {
	return d.page.StatusCode
}

// Rendered reports whether the markup came from a hydrated browser DOM.
func (d *Document) Rendered() bool {
	return d.page.Rendered
}

// Find exposes raw selection for retailer-specific probing.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Main returns the main-content region. The first matching container wins;
// when none match, the body is cloned with page chrome stripped so phrase
// matches stay scoped to content.
func (d *Document) Main(containers string) *goquery.Selection {
	if sel := d.doc.Find(containers).First(); sel.Length() > 0 {
		return sel
	}
	body := d.doc.Find("body").Clone()
	body.Find(chromeSelectors).Remove()
	return body
}

// MainText returns the normalized lowercase text of the main-content region.
func (d *Document) MainText(containers string) string {
	return NormalizeText(d.Main(containers).Text())
}

// BodyText returns the normalized lowercase text of the whole body.
func (d *Document) BodyText() string {
	return NormalizeText(d.doc.Find("body").Text())
}

// TitleTag returns the <title> text.
func (d *Document) TitleTag() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// MetaContent returns the content attribute of the first matching meta tag.
func (d *Document) MetaContent(selector string) string {
	content, _ := d.doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// NormalizeText lowercases and collapses whitespace for phrase matching.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(s), " "))
}
