package extract

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// maxWalkDepth bounds the inventory walk so cyclic or pathologically deep
// payloads cannot stall extraction.
const maxWalkDepth = 32

// Keys consulted when a JSON node carries product context. Order matters:
// the first populated key wins within a node.
var (
	inventoryBoolKeys  = []string{"inStock", "availableOnline", "purchasable", "isAvailable", "available"}
	preorderBoolKeys   = []string{"isPreOrder", "preorder", "preOrder"}
	productContextKeys = []string{"sku", "id", "price", "title", "name", "offers", "amount", "priceRange", "product", "gtin"}
)

var varAssignRe = regexp.MustCompile(`(?:window\.|var\s+|const\s+|let\s+)[\w$]+\s*=\s*(\{[\s\S]*?\});?`)

// InventorySignals are the inlined server-state booleans discovered near
// product context in embedded script payloads. Nil pointers mean the signal
// was never observed.
type InventorySignals struct {
	InStock         *bool
	AvailableOnline *bool
	Purchasable     *bool
	Preorder        *bool
	Price           *decimal.Decimal
	Currency        string
}

// Available collapses the booleans with availableOnline as the primary
// signal, then inStock, then purchasable. Returns nil when nothing was seen.
func (s InventorySignals) Available() *bool {
	if s.AvailableOnline != nil {
		return s.AvailableOnline
	}
	if s.InStock != nil {
		return s.InStock
	}
	return s.Purchasable
}

// ScanInlineInventory parses every embedded script payload that looks like
// JSON (direct object/array content, __NEXT_DATA__ / application/json blobs,
// and top-level variable assignments) and walks it depth-first for inventory
// booleans. Only nodes that also carry product-context keys contribute;
// inventory flags on unrelated config objects are ignored. Malformed
// fragments are skipped.
func ScanInlineInventory(d *Document) InventorySignals {
	var signals InventorySignals
	d.Find("script").Each(func(_ int, el *goquery.Selection) {
		content := strings.TrimSpace(el.Text())
		if content == "" {
			return
		}
		for _, candidate := range jsonCandidates(el, content) {
			var data any
			if err := json.Unmarshal([]byte(candidate), &data); err != nil {
				continue
			}
			walkInventory(data, 0, &signals)
		}
	})
	return signals
}

func jsonCandidates(el *goquery.Selection, content string) []string {
	var candidates []string
	if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
		candidates = append(candidates, content)
	}
	if id, _ := el.Attr("id"); id == "__NEXT_DATA__" {
		candidates = append(candidates, content)
	} else if typ, _ := el.Attr("type"); typ == "application/json" {
		candidates = append(candidates, content)
	}
	for _, match := range varAssignRe.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, match[1])
	}
	return candidates
}

func walkInventory(node any, depth int, signals *InventorySignals) {
	if depth > maxWalkDepth {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if hasProductContext(v) {
			collectInventory(v, signals)
		}
		// Sorted key order keeps first-found semantics deterministic.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkInventory(v[k], depth+1, signals)
		}
	case []any:
		for _, item := range v {
			walkInventory(item, depth+1, signals)
		}
	}
}

func hasProductContext(node map[string]any) bool {
	for _, key := range productContextKeys {
		if _, ok := node[key]; ok {
			return true
		}
	}
	return false
}

func collectInventory(node map[string]any, signals *InventorySignals) {
	for _, key := range inventoryBoolKeys {
		b, ok := node[key].(bool)
		if !ok {
			continue
		}
		val := b
		switch key {
		case "availableOnline":
			if signals.AvailableOnline == nil {
				signals.AvailableOnline = &val
			}
		case "purchasable":
			if signals.Purchasable == nil {
				signals.Purchasable = &val
			}
		default:
			if signals.InStock == nil {
				signals.InStock = &val
			}
		}
	}
	// Numeric sell counts act as an in-stock boolean.
	if n, ok := node["availableToSell"].(float64); ok && signals.InStock == nil {
		val := n > 0
		signals.InStock = &val
	}
	for _, key := range preorderBoolKeys {
		if b, ok := node[key].(bool); ok && signals.Preorder == nil {
			val := b
			signals.Preorder = &val
			break
		}
	}
	collectInventoryPrice(node, signals)
}

func collectInventoryPrice(node map[string]any, signals *InventorySignals) {
	if signals.Price != nil {
		return
	}
	if p, ok := node["price"].(float64); ok && p > 0 {
		d := decimal.NewFromFloat(p)
		signals.Price = &d
		if cur, ok := node["currency"].(string); ok {
			signals.Currency = cur
		} else {
			signals.Currency = "AUD"
		}
		return
	}
	// Cent-denominated amounts, seen in Big W payloads.
	if amount, ok := node["amount"].(float64); ok && amount > 0 {
		d := decimal.NewFromFloat(amount).Div(decimal.NewFromInt(100))
		signals.Price = &d
		signals.Currency = "AUD"
		return
	}
	if rng, ok := node["priceRange"].(map[string]any); ok {
		if m, ok := rng["min"].(map[string]any); ok {
			if amount, ok := m["amount"].(float64); ok && amount > 0 {
				d := decimal.NewFromFloat(amount).Div(decimal.NewFromInt(100))
				signals.Price = &d
				signals.Currency = "AUD"
			}
		}
	}
}
