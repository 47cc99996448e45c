// Package monitor defines the core types and interfaces for the stock
// monitoring pipeline. It includes the definitions for monitored targets,
// normalized scrape results, snapshots, and stock events.
package monitor

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the decision engine's single-valued classification for one
// observation of a product page.
type Status string

// Status values produced by the per-retailer decision engines.
const (
	StatusInStock    Status = "IN_STOCK"
	StatusOutOfStock Status = "OUT_OF_STOCK"
	StatusPreorder   Status = "PREORDER"
	StatusRemoved    Status = "REMOVED"
	StatusUnknown    Status = "UNKNOWN"
)

// Verdict is the outcome of a decision engine run: a status plus the name of
// the rule that produced it.
type Verdict struct {
	Status Status
	Reason string
}

// Verdict reasons shared across retailer engines.
const (
	ReasonPageNotFound       = "PAGE_NOT_FOUND"
	ReasonAPIInStock         = "API_IN_STOCK"
	ReasonJSONLDInStock      = "JSONLD_IN_STOCK"
	ReasonJSONLDOutOfStock   = "JSONLD_OUT_OF_STOCK"
	ReasonJSONLDPreorder     = "JSONLD_PREORDER"
	ReasonExplicitOOS        = "EXPLICIT_OOS"
	ReasonAddToCartAvailable = "ADD_TO_CART_AVAILABLE"
	ReasonWishlistOnly       = "WISHLIST_ONLY"
	ReasonInStoreOnly        = "IN_STORE_ONLY"
	ReasonStockLine          = "STOCK_LINE"
	ReasonExplicitPreorder   = "EXPLICIT_PREORDER"
	ReasonEnquireOnly        = "ENQUIRE_ONLY"
	ReasonUnknown            = "UNKNOWN"
)

// InStock reports whether the verdict means the product is buyable online.
func (v Verdict) InStock() bool {
	return v.Status == StatusInStock
}

// Target is one monitored product page. Targets are registered externally and
// are read-only to the pipeline.
type Target struct {
	ID               string
	URL              string
	RetailerID       string
	RetailerPlatform string
	Title            string
}

// TargetFilter narrows a run to a subset of targets.
type TargetFilter struct {
	Platform string
}

// StoreAvail is a per-physical-store availability signal. Only retailers that
// expose store-level inventory produce these.
type StoreAvail struct {
	StoreCode string
	StoreName string
	InStock   bool
	Price     *decimal.Decimal
}

// NormalizedVariant is the per-variant result of one adapter invocation.
// It is constructed fresh on every scrape and never mutated afterwards.
type NormalizedVariant struct {
	Price         *decimal.Decimal
	InStock       bool
	IsPreorder    bool
	IsInStoreOnly bool
	IsUnavailable bool
	StoreAvails   []StoreAvail
}

// NormalizedProduct is the adapter output for one target.
type NormalizedProduct struct {
	Retailer string
	URL      string
	Title    string
	SKU      string
	Variants []NormalizedVariant

	// Verdict records which rule decided the first variant's status.
	Verdict Verdict
	// Evidence is the page the verdict was derived from, when available.
	Evidence *PageEvidence
	// Err marks a best-effort placeholder result produced after an adapter
	// failure. The orchestrator counts it without aborting the batch.
	Err error
}

// PageEvidence captures the markup backing a verdict so it can be archived
// when the observation turns out to be a state change.
type PageEvidence struct {
	URL        string
	StatusCode int
	Body       []byte
	Rendered   bool
	FetchedAt  time.Time
}

// Page is the raw transport result of one fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
	Rendered   bool
}

// StoreRecord is a physical retail store known to the persistence layer.
type StoreRecord struct {
	ID         string
	RetailerID string
	StoreCode  string
	Name       string
}

// Snapshot is the last-known observed state for a variant. One row is
// appended per change; the most recent row is the current truth.
type Snapshot struct {
	ID          string
	VariantID   string
	InStock     bool
	Price       *decimal.Decimal
	Fingerprint string
	ObservedAt  time.Time
}

// EventType classifies a state transition between two snapshots.
type EventType string

// Event taxonomy. STATUS_FLIP is both the first-observation type and the
// catch-all for deltas that are not a stock or price transition.
const (
	EventStatusFlip EventType = "STATUS_FLIP"
	EventInStock    EventType = "IN_STOCK"
	EventOutOfStock EventType = "OUT_OF_STOCK"
	EventPriceDrop  EventType = "PRICE_DROP"
)

// EventState is one side of a transition recorded in event details.
type EventState struct {
	InStock bool   `json:"inStock"`
	Price   string `json:"price,omitempty"`
}

// EventDetails carries both sides of the transition that produced an event.
type EventDetails struct {
	Previous *EventState `json:"prev"`
	Current  EventState  `json:"cur"`
}

// StockEvent is a typed, timestamped record of a state transition. Events are
// append-only and created 1:1 with each new Snapshot.
type StockEvent struct {
	ID         string
	VariantID  string
	Type       EventType
	Details    EventDetails
	OccurredAt time.Time
}

// RunSummary aggregates the outcome of one monitor run.
type RunSummary struct {
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// AdaptOptions are per-invocation adapter knobs.
type AdaptOptions struct {
	// Postcode scopes store-level availability lookups for retailers that
	// expose per-store inventory.
	Postcode string
}
