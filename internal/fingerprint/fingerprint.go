// Package fingerprint computes the stable hash used to suppress duplicate
// observations.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// Length of the hex digest prefix kept as the fingerprint.
const digestLen = 16

type canonical struct {
	InStock bool     `json:"inStock"`
	Price   *string  `json:"price"`
	Stores  []string `json:"stores"`
}

// Compute hashes the observable state of a variant. Identical state yields an
// identical fingerprint regardless of the order store entries were observed
// in, so the store list is sorted before hashing.
func Compute(inStock bool, price *decimal.Decimal, stores []monitor.StoreAvail) (string, error) {
	entries := make([]string, 0, len(stores))
	for _, s := range stores {
		entries = append(entries, fmt.Sprintf("%s:%t", s.StoreCode, s.InStock))
	}
	sort.Strings(entries)

	var priceStr *string
	if price != nil {
		v := price.String()
		priceStr = &v
	}

	payload, err := json.Marshal(canonical{
		InStock: inStock,
		Price:   priceStr,
		Stores:  entries,
	})
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:digestLen], nil
}
