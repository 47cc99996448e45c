// Package normalize turns adapter results into persisted state changes. It
// owns the fingerprint comparison and the event taxonomy; repeated identical
// observations never grow the audit trail.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/fingerprint"
	"github.com/cardstock/stockwatch/internal/monitor"
)

const stripeCount = 64

// Normalizer applies adapter results to the store, appending a snapshot and
// event only when the observed state actually changed.
type Normalizer struct {
	store  monitor.Store
	clock  monitor.Clock
	ids    monitor.IDGenerator
	logger *zap.Logger

	// Striped per-variant locks serialize concurrent Apply calls for the
	// same variant within this process. Cross-process races are closed by
	// the transactional AppendChange.
	stripes [stripeCount]sync.Mutex
}

// New builds a Normalizer.
func New(store monitor.Store, clock monitor.Clock, ids monitor.IDGenerator, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{store: store, clock: clock, ids: ids, logger: logger}
}

// Apply upserts store-level availability, fingerprints the observation, and
// persists a snapshot/event pair when the fingerprint differs from the latest
// snapshot. Identical fingerprints are a no-op with a nil event.
func (n *Normalizer) Apply(ctx context.Context, target monitor.Target, variantID string, v monitor.NormalizedVariant) (*monitor.StockEvent, error) {
	mu := &n.stripes[stripeFor(variantID)]
	mu.Lock()
	defer mu.Unlock()

	now := n.clock.Now()
	for _, avail := range v.StoreAvails {
		store, err := n.store.UpsertStore(ctx, target.RetailerID, avail.StoreCode, avail.StoreName)
		if err != nil {
			return nil, fmt.Errorf("upsert store %s: %w", avail.StoreCode, err)
		}
		if err := n.store.UpsertStoreAvailability(ctx, variantID, store.ID, avail, now); err != nil {
			return nil, fmt.Errorf("upsert store availability %s: %w", avail.StoreCode, err)
		}
	}

	fp, err := fingerprint.Compute(v.InStock, v.Price, v.StoreAvails)
	if err != nil {
		return nil, fmt.Errorf("compute fingerprint: %w", err)
	}

	var prev *monitor.Snapshot
	latest, err := n.store.LatestSnapshot(ctx, variantID)
	switch {
	case err == nil:
		prev = &latest
	case errors.Is(err, monitor.ErrNoSnapshot):
	default:
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if prev != nil && prev.Fingerprint == fp {
		return nil, nil
	}

	snapID, err := n.ids.NewID()
	if err != nil {
		return nil, err
	}
	eventID, err := n.ids.NewID()
	if err != nil {
		return nil, err
	}

	event := monitor.StockEvent{
		ID:         eventID,
		VariantID:  variantID,
		Type:       classify(prev, v),
		Details:    details(prev, v),
		OccurredAt: now,
	}
	snap := monitor.Snapshot{
		ID:          snapID,
		VariantID:   variantID,
		InStock:     v.InStock,
		Price:       v.Price,
		Fingerprint: fp,
		ObservedAt:  now,
	}

	if err := n.store.AppendChange(ctx, snap, event); err != nil {
		return nil, fmt.Errorf("append change: %w", err)
	}

	n.logger.Info("stock state changed",
		zap.String("variant_id", variantID),
		zap.String("event_type", string(event.Type)),
		zap.Bool("in_stock", v.InStock))
	return &event, nil
}

// classify maps the snapshot delta onto the event taxonomy. STATUS_FLIP is
// both the first-observation type and the catch-all.
func classify(prev *monitor.Snapshot, v monitor.NormalizedVariant) monitor.EventType {
	if prev == nil {
		return monitor.EventStatusFlip
	}
	if !prev.InStock && v.InStock {
		return monitor.EventInStock
	}
	if prev.InStock && !v.InStock {
		return monitor.EventOutOfStock
	}
	if priceDropped(prev.Price, v.Price) {
		return monitor.EventPriceDrop
	}
	return monitor.EventStatusFlip
}

func priceDropped(old, new *decimal.Decimal) bool {
	return old != nil && new != nil && new.LessThan(*old)
}

func details(prev *monitor.Snapshot, v monitor.NormalizedVariant) monitor.EventDetails {
	d := monitor.EventDetails{
		Current: monitor.EventState{InStock: v.InStock, Price: priceString(v.Price)},
	}
	if prev != nil {
		d.Previous = &monitor.EventState{InStock: prev.InStock, Price: priceString(prev.Price)}
	}
	return d
}

func priceString(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func stripeFor(variantID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(variantID))
	return int(h.Sum32() % stripeCount)
}
